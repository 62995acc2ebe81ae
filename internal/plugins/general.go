package plugins

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/sethvargo/go-retry"
	"go.uber.org/zap"

	"identity-system/internal/dto"
	apperrors "identity-system/pkg/errors"
)

const (
	defaultGeneralTimeout  = 30
	defaultGeneralPageSize = 500
	generalRetryBackoff    = 2 * time.Second
)

// GeneralPlugin — произвольный REST-источник. Эндпоинты отдают страницы
// вида {"count": N, "results": [...]} с записями уже в каноничной форме
// (code, properties, leaders, departments / parent).
type GeneralPlugin struct {
	cfg    dto.GeneralPluginConfigDTO
	client *http.Client
	logger *zap.Logger
}

func NewGeneralPlugin(raw json.RawMessage, logger *zap.Logger) (Plugin, error) {
	var cfg dto.GeneralPluginConfigDTO
	if err := decodeConfig(raw, &cfg); err != nil {
		return nil, err
	}
	if cfg.TimeoutSeconds == 0 {
		cfg.TimeoutSeconds = defaultGeneralTimeout
	}
	if cfg.PageSize == 0 {
		cfg.PageSize = defaultGeneralPageSize
	}
	return &GeneralPlugin{
		cfg:    cfg,
		client: &http.Client{Timeout: time.Duration(cfg.TimeoutSeconds) * time.Second},
		logger: logger.Named("plugin_general"),
	}, nil
}

type generalPage struct {
	Count   int             `json:"count"`
	Results json.RawMessage `json:"results"`
}

// getPage один раз ходит за страницей; сетевые и 5xx-ошибки ретраятся
// в пределах бюджета RetryCount, 4xx — нет (конфигурация кривая, повтор бессмыслен).
func (p *GeneralPlugin) getPage(ctx context.Context, path string, page int) (*generalPage, error) {
	q := url.Values{}
	q.Set("page", fmt.Sprintf("%d", page))
	q.Set("page_size", fmt.Sprintf("%d", p.cfg.PageSize))
	endpoint := fmt.Sprintf("%s%s?%s", p.cfg.ServerBaseURL, path, q.Encode())

	var result generalPage
	backoff := retry.WithMaxRetries(uint64(p.cfg.RetryCount), retry.NewConstant(generalRetryBackoff))

	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return err
		}
		p.applyAuth(req)

		resp, err := p.client.Do(req)
		if err != nil {
			return retry.RetryableError(err)
		}
		defer resp.Body.Close()

		switch {
		case resp.StatusCode >= 500:
			return retry.RetryableError(fmt.Errorf("http %d", resp.StatusCode))
		case resp.StatusCode != http.StatusOK:
			return fmt.Errorf("http %d", resp.StatusCode)
		}

		if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
			return apperrors.NewMalformedDataError(0, fmt.Sprintf("нечитаемая страница %s", path), err)
		}
		return nil
	})
	if err != nil {
		var malformed *apperrors.MalformedDataError
		if errors.As(err, &malformed) {
			return nil, err
		}
		return nil, apperrors.NewConnectionError(0, path, err)
	}
	return &result, nil
}

func (p *GeneralPlugin) applyAuth(req *http.Request) {
	switch p.cfg.AuthMethod {
	case "basic":
		req.SetBasicAuth(p.cfg.Username, p.cfg.Password)
	case "bearer":
		req.Header.Set("Authorization", "Bearer "+p.cfg.BearerToken)
	}
}

func (p *GeneralPlugin) fetchAll(ctx context.Context, path string, decode func(json.RawMessage) (int, error)) error {
	for page := 1; ; page++ {
		pageData, err := p.getPage(ctx, path, page)
		if err != nil {
			return err
		}
		n, err := decode(pageData.Results)
		if err != nil {
			return apperrors.NewMalformedDataError(0, fmt.Sprintf("нечитаемые записи %s", path), err)
		}
		if n < p.cfg.PageSize {
			return nil
		}
	}
}

func (p *GeneralPlugin) FetchUsers(ctx context.Context) ([]dto.RawUser, error) {
	var users []dto.RawUser
	err := p.fetchAll(ctx, p.cfg.UsersPath, func(raw json.RawMessage) (int, error) {
		var batch []dto.RawUser
		if err := json.Unmarshal(raw, &batch); err != nil {
			return 0, err
		}
		users = append(users, batch...)
		return len(batch), nil
	})
	if err != nil {
		return nil, err
	}
	p.logger.Info("пользователи получены из REST-источника", zap.Int("count", len(users)))
	return users, nil
}

func (p *GeneralPlugin) FetchDepartments(ctx context.Context) ([]dto.RawDepartment, error) {
	var departments []dto.RawDepartment
	err := p.fetchAll(ctx, p.cfg.DepartmentsPath, func(raw json.RawMessage) (int, error) {
		var batch []dto.RawDepartment
		if err := json.Unmarshal(raw, &batch); err != nil {
			return 0, err
		}
		departments = append(departments, batch...)
		return len(batch), nil
	})
	if err != nil {
		return nil, err
	}
	p.logger.Info("подразделения получены из REST-источника", zap.Int("count", len(departments)))
	return departments, nil
}

func (p *GeneralPlugin) TestConnection(ctx context.Context) dto.TestConnectionResult {
	res := dto.TestConnectionResult{Extras: map[string]string{
		"server_base_url": p.cfg.ServerBaseURL,
		"auth_method":     p.cfg.AuthMethod,
	}}

	page, err := p.getPage(ctx, p.cfg.UsersPath, 1)
	if err != nil {
		res.ErrorMessage = err.Error()
		return res
	}
	var users []dto.RawUser
	if err := json.Unmarshal(page.Results, &users); err != nil {
		res.ErrorMessage = fmt.Sprintf("нечитаемые записи %s: %v", p.cfg.UsersPath, err)
		return res
	}
	if len(users) > 0 {
		res.User = &users[0]
	}
	res.Extras["users_total"] = fmt.Sprintf("%d", page.Count)
	return res
}
