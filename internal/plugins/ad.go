package plugins

import (
	"context"
	"encoding/json"
	"strconv"

	"go.uber.org/zap"

	"identity-system/internal/dto"
)

// Бит ACCOUNTDISABLE в userAccountControl.
const adAccountDisabled = 0x2

// ADPlugin — Active Directory поверх LDAP-транспорта. Отличия от чистого
// LDAP: фиксированные имена атрибутов (sAMAccountName, manager, memberOf),
// фильтрация выключенных учёток и полный запрет записи в источник.
type ADPlugin struct {
	ldap   *LDAPPlugin
	cfg    dto.ADPluginConfigDTO
	logger *zap.Logger
}

func NewADPlugin(raw json.RawMessage, logger *zap.Logger) (Plugin, error) {
	var cfg dto.ADPluginConfigDTO
	if err := decodeConfig(raw, &cfg); err != nil {
		return nil, err
	}

	if cfg.CodeAttribute == "" {
		cfg.CodeAttribute = "sAMAccountName"
	}
	if cfg.LeaderAttribute == "" {
		cfg.LeaderAttribute = "manager"
	}
	if cfg.MemberOfAttribute == "" {
		cfg.MemberOfAttribute = "memberOf"
	}
	if !contains(cfg.UserAttributes, "userAccountControl") {
		cfg.UserAttributes = append(cfg.UserAttributes, "userAccountControl")
	}
	if cfg.PageSize == 0 {
		cfg.PageSize = defaultLDAPPageSize
	}

	return &ADPlugin{
		ldap:   &LDAPPlugin{cfg: cfg.LDAPPluginConfigDTO, logger: logger.Named("plugin_ad")},
		cfg:    cfg,
		logger: logger.Named("plugin_ad"),
	}, nil
}

func (p *ADPlugin) FetchUsers(ctx context.Context) ([]dto.RawUser, error) {
	users, err := p.ldap.FetchUsers(ctx)
	if err != nil {
		return nil, err
	}
	if !p.cfg.SkipDisabledUsers {
		return users, nil
	}

	active := users[:0]
	skipped := 0
	for _, u := range users {
		if isADDisabled(u.Properties["userAccountControl"]) {
			skipped++
			continue
		}
		active = append(active, u)
	}
	if skipped > 0 {
		p.logger.Info("выключенные учётки AD пропущены", zap.Int("skipped", skipped))
	}
	return active, nil
}

func (p *ADPlugin) FetchDepartments(ctx context.Context) ([]dto.RawDepartment, error) {
	return p.ldap.FetchDepartments(ctx)
}

func (p *ADPlugin) TestConnection(ctx context.Context) dto.TestConnectionResult {
	res := p.ldap.TestConnection(ctx)
	if res.Extras == nil {
		res.Extras = map[string]string{}
	}
	res.Extras["write_back"] = "disabled"
	return res
}

func isADDisabled(uac string) bool {
	if uac == "" {
		return false
	}
	n, err := strconv.Atoi(uac)
	if err != nil {
		return false
	}
	return n&adAccountDisabled != 0
}
