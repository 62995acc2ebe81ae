package plugins

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"go.uber.org/zap"

	"identity-system/internal/dto"
	apperrors "identity-system/pkg/errors"
)

// WeComPlugin — корпоративный API WeCom: получение access_token,
// список подразделений и пользователи по корневым подразделениям.
type WeComPlugin struct {
	cfg    dto.WeComPluginConfigDTO
	client *http.Client
	logger *zap.Logger
}

func NewWeComPlugin(raw json.RawMessage, logger *zap.Logger) (Plugin, error) {
	var cfg dto.WeComPluginConfigDTO
	if err := decodeConfig(raw, &cfg); err != nil {
		return nil, err
	}
	return &WeComPlugin{
		cfg:    cfg,
		client: &http.Client{Timeout: 30 * time.Second},
		logger: logger.Named("plugin_wecom"),
	}, nil
}

type wecomTokenResp struct {
	ErrCode     int    `json:"errcode"`
	ErrMsg      string `json:"errmsg"`
	AccessToken string `json:"access_token"`
}

type wecomDepartment struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	ParentID int64  `json:"parentid"`
}

type wecomDepartmentsResp struct {
	ErrCode    int               `json:"errcode"`
	ErrMsg     string            `json:"errmsg"`
	Department []wecomDepartment `json:"department"`
}

type wecomUser struct {
	UserID       string  `json:"userid"`
	Name         string  `json:"name"`
	Mobile       string  `json:"mobile"`
	Email        string  `json:"email"`
	Departments  []int64 `json:"department"`
	DirectLeader []string `json:"direct_leader"`
}

type wecomUsersResp struct {
	ErrCode  int         `json:"errcode"`
	ErrMsg   string      `json:"errmsg"`
	UserList []wecomUser `json:"userlist"`
}

func (p *WeComPlugin) get(ctx context.Context, path string, query url.Values, out interface{}) error {
	u := fmt.Sprintf("%s%s?%s", p.cfg.BaseURL, path, query.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return apperrors.NewConnectionError(0, path, err)
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return apperrors.NewConnectionError(0, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return apperrors.NewConnectionError(0, path, fmt.Errorf("http %d", resp.StatusCode))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return apperrors.NewMalformedDataError(0, fmt.Sprintf("нечитаемый ответ %s", path), err)
	}
	return nil
}

func (p *WeComPlugin) accessToken(ctx context.Context) (string, error) {
	q := url.Values{}
	q.Set("corpid", p.cfg.CorpID)
	q.Set("corpsecret", p.cfg.CorpSecret)

	var token wecomTokenResp
	if err := p.get(ctx, "/cgi-bin/gettoken", q, &token); err != nil {
		return "", err
	}
	if token.ErrCode != 0 {
		return "", apperrors.NewConnectionError(0, "gettoken",
			fmt.Errorf("errcode=%d: %s", token.ErrCode, token.ErrMsg))
	}
	return token.AccessToken, nil
}

func (p *WeComPlugin) FetchDepartments(ctx context.Context) ([]dto.RawDepartment, error) {
	token, err := p.accessToken(ctx)
	if err != nil {
		return nil, err
	}

	q := url.Values{}
	q.Set("access_token", token)

	var resp wecomDepartmentsResp
	if err := p.get(ctx, "/cgi-bin/department/list", q, &resp); err != nil {
		return nil, err
	}
	if resp.ErrCode != 0 {
		return nil, apperrors.NewConnectionError(0, "department/list",
			fmt.Errorf("errcode=%d: %s", resp.ErrCode, resp.ErrMsg))
	}

	departments := make([]dto.RawDepartment, 0, len(resp.Department))
	for _, d := range resp.Department {
		parent := ""
		if d.ParentID > 0 {
			parent = strconv.FormatInt(d.ParentID, 10)
		}
		departments = append(departments, dto.RawDepartment{
			Code:       strconv.FormatInt(d.ID, 10),
			Name:       d.Name,
			Parent:     parent,
			Properties: map[string]string{},
		})
	}
	p.logger.Info("подразделения получены из WeCom", zap.Int("count", len(departments)))
	return departments, nil
}

func (p *WeComPlugin) FetchUsers(ctx context.Context) ([]dto.RawUser, error) {
	token, err := p.accessToken(ctx)
	if err != nil {
		return nil, err
	}

	departments, err := p.FetchDepartments(ctx)
	if err != nil {
		return nil, err
	}

	// user/list с fetch_child=1 по корням дерева покрывает всех; дубликаты
	// (пользователь в нескольких подразделениях) схлопываются по userid.
	seen := map[string]bool{}
	var users []dto.RawUser
	for _, d := range departments {
		if d.Parent != "" {
			continue
		}
		q := url.Values{}
		q.Set("access_token", token)
		q.Set("department_id", d.Code)
		q.Set("fetch_child", "1")

		var resp wecomUsersResp
		if err := p.get(ctx, "/cgi-bin/user/list", q, &resp); err != nil {
			return nil, err
		}
		if resp.ErrCode != 0 {
			return nil, apperrors.NewConnectionError(0, "user/list",
				fmt.Errorf("errcode=%d: %s", resp.ErrCode, resp.ErrMsg))
		}

		for _, u := range resp.UserList {
			if u.UserID == "" || seen[u.UserID] {
				continue
			}
			seen[u.UserID] = true

			deptCodes := make([]string, 0, len(u.Departments))
			for _, id := range u.Departments {
				deptCodes = append(deptCodes, strconv.FormatInt(id, 10))
			}
			users = append(users, dto.RawUser{
				Code: u.UserID,
				Properties: map[string]string{
					"username":  u.UserID,
					"full_name": u.Name,
					"email":     u.Email,
					"phone":     u.Mobile,
				},
				Leaders:     u.DirectLeader,
				Departments: deptCodes,
			})
		}
	}

	p.logger.Info("пользователи получены из WeCom", zap.Int("count", len(users)))
	return users, nil
}

func (p *WeComPlugin) TestConnection(ctx context.Context) dto.TestConnectionResult {
	res := dto.TestConnectionResult{Extras: map[string]string{"base_url": p.cfg.BaseURL}}

	if _, err := p.accessToken(ctx); err != nil {
		res.ErrorMessage = err.Error()
		return res
	}
	departments, err := p.FetchDepartments(ctx)
	if err != nil {
		res.ErrorMessage = err.Error()
		return res
	}
	if len(departments) > 0 {
		res.Department = &departments[0]
	}
	return res
}
