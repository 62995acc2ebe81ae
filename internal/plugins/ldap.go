package plugins

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	ldap "github.com/go-ldap/ldap/v3"
	"go.uber.org/zap"

	"identity-system/internal/dto"
	apperrors "identity-system/pkg/errors"
)

const defaultLDAPPageSize = 500

// LDAPPlugin — подключение к каталогу по LDAP: bind сервисной учёткой,
// страничный поиск пользователей и подразделений.
// Код записи — настраиваемый атрибут; код подразделения — его DN.
type LDAPPlugin struct {
	cfg    dto.LDAPPluginConfigDTO
	logger *zap.Logger
}

func NewLDAPPlugin(raw json.RawMessage, logger *zap.Logger) (Plugin, error) {
	var cfg dto.LDAPPluginConfigDTO
	if err := decodeConfig(raw, &cfg); err != nil {
		return nil, err
	}
	if cfg.PageSize == 0 {
		cfg.PageSize = defaultLDAPPageSize
	}
	return &LDAPPlugin{cfg: cfg, logger: logger.Named("plugin_ldap")}, nil
}

func (p *LDAPPlugin) connect() (*ldap.Conn, error) {
	conn, err := ldap.DialURL(p.cfg.ServerURL)
	if err != nil {
		return nil, fmt.Errorf("не удалось подключиться к %s: %w", p.cfg.ServerURL, err)
	}
	if err := conn.Bind(p.cfg.BindDN, p.cfg.BindPassword); err != nil {
		conn.Close()
		return nil, fmt.Errorf("bind %q: %w", p.cfg.BindDN, err)
	}
	return conn, nil
}

func (p *LDAPPlugin) search(filter string, attributes []string) ([]*ldap.Entry, error) {
	conn, err := p.connect()
	if err != nil {
		return nil, apperrors.NewConnectionError(0, "ldap_connect", err)
	}
	defer conn.Close()

	req := ldap.NewSearchRequest(
		p.cfg.BaseDN,
		ldap.ScopeWholeSubtree, ldap.NeverDerefAliases, 0, 0, false,
		filter,
		attributes,
		nil,
	)
	sr, err := conn.SearchWithPaging(req, p.cfg.PageSize)
	if err != nil {
		return nil, apperrors.NewConnectionError(0, "ldap_search", err)
	}
	return sr.Entries, nil
}

func (p *LDAPPlugin) FetchUsers(ctx context.Context) ([]dto.RawUser, error) {
	entries, err := p.search(p.cfg.UserFilter, p.userAttributes())
	if err != nil {
		return nil, err
	}

	users := make([]dto.RawUser, 0, len(entries))
	for _, entry := range entries {
		code := entry.GetAttributeValue(p.cfg.CodeAttribute)
		if code == "" {
			return nil, apperrors.NewMalformedDataError(0,
				fmt.Sprintf("запись %q без атрибута %q", entry.DN, p.cfg.CodeAttribute), nil)
		}

		props := map[string]string{}
		for _, attr := range p.cfg.UserAttributes {
			props[attr] = entry.GetAttributeValue(attr)
		}

		var leaders []string
		if p.cfg.LeaderAttribute != "" {
			leaders = entry.GetAttributeValues(p.cfg.LeaderAttribute)
		}

		departments := p.userDepartments(entry)

		users = append(users, dto.RawUser{
			Code:        code,
			Properties:  props,
			Leaders:     leaders,
			Departments: departments,
		})
	}

	p.logger.Info("пользователи получены из LDAP", zap.Int("count", len(users)))
	return users, nil
}

func (p *LDAPPlugin) FetchDepartments(ctx context.Context) ([]dto.RawDepartment, error) {
	entries, err := p.search(p.cfg.DepartmentFilter, []string{"ou", "description"})
	if err != nil {
		return nil, err
	}

	departments := make([]dto.RawDepartment, 0, len(entries))
	for _, entry := range entries {
		name := entry.GetAttributeValue("ou")
		if name == "" {
			name = firstRDNValue(entry.DN)
		}
		departments = append(departments, dto.RawDepartment{
			Code:   entry.DN,
			Name:   name,
			Parent: p.parentOf(entry.DN),
			Properties: map[string]string{
				"description": entry.GetAttributeValue("description"),
			},
		})
	}

	p.logger.Info("подразделения получены из LDAP", zap.Int("count", len(departments)))
	return departments, nil
}

func (p *LDAPPlugin) TestConnection(ctx context.Context) dto.TestConnectionResult {
	res := dto.TestConnectionResult{Extras: map[string]string{"server_url": p.cfg.ServerURL}}

	conn, err := p.connect()
	if err != nil {
		res.ErrorMessage = err.Error()
		return res
	}
	conn.Close()

	users, err := p.FetchUsers(ctx)
	if err != nil {
		res.ErrorMessage = err.Error()
		return res
	}
	if len(users) > 0 {
		res.User = &users[0]
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

func (p *LDAPPlugin) userAttributes() []string {
	attrs := append([]string{}, p.cfg.UserAttributes...)
	if p.cfg.CodeAttribute != "" && !contains(attrs, p.cfg.CodeAttribute) {
		attrs = append(attrs, p.cfg.CodeAttribute)
	}
	if p.cfg.LeaderAttribute != "" && !contains(attrs, p.cfg.LeaderAttribute) {
		attrs = append(attrs, p.cfg.LeaderAttribute)
	}
	if p.cfg.MemberOfAttribute != "" && !contains(attrs, p.cfg.MemberOfAttribute) {
		attrs = append(attrs, p.cfg.MemberOfAttribute)
	}
	return attrs
}

// userDepartments: явный membership-атрибут, иначе расположение записи в дереве.
func (p *LDAPPlugin) userDepartments(entry *ldap.Entry) []string {
	if p.cfg.MemberOfAttribute != "" {
		return entry.GetAttributeValues(p.cfg.MemberOfAttribute)
	}
	if parent := p.parentOf(entry.DN); parent != "" {
		return []string{parent}
	}
	return nil
}

// parentOf отрезает первый RDN; над базой дерева родителя нет.
func (p *LDAPPlugin) parentOf(dn string) string {
	idx := strings.Index(dn, ",")
	if idx < 0 {
		return ""
	}
	parent := strings.TrimSpace(dn[idx+1:])
	if strings.EqualFold(parent, p.cfg.BaseDN) {
		return ""
	}
	if !strings.HasSuffix(strings.ToLower(parent), strings.ToLower(p.cfg.BaseDN)) {
		return ""
	}
	return parent
}

func firstRDNValue(dn string) string {
	first := dn
	if idx := strings.Index(dn, ","); idx >= 0 {
		first = dn[:idx]
	}
	if idx := strings.Index(first, "="); idx >= 0 {
		return strings.TrimSpace(first[idx+1:])
	}
	return strings.TrimSpace(first)
}
