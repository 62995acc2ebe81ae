package plugins

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func wecomServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/cgi-bin/gettoken", func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "corp1", r.URL.Query().Get("corpid"))
		fmt.Fprint(w, `{"errcode":0,"errmsg":"ok","access_token":"tok"}`)
	})
	mux.HandleFunc("/cgi-bin/department/list", func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "tok", r.URL.Query().Get("access_token"))
		fmt.Fprint(w, `{"errcode":0,"department":[
			{"id":1,"name":"Компания","parentid":0},
			{"id":2,"name":"ИТ","parentid":1}
		]}`)
	})
	mux.HandleFunc("/cgi-bin/user/list", func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "1", r.URL.Query().Get("department_id"))
		require.Equal(t, "1", r.URL.Query().Get("fetch_child"))
		fmt.Fprint(w, `{"errcode":0,"userlist":[
			{"userid":"zhang","name":"Чжан","department":[1,2],"direct_leader":["li"]},
			{"userid":"li","name":"Ли","department":[1]},
			{"userid":"zhang","name":"дубликат"}
		]}`)
	})
	return httptest.NewServer(mux)
}

func newWeComPlugin(t *testing.T, baseURL string) Plugin {
	t.Helper()
	raw, _ := json.Marshal(map[string]string{
		"base_url": baseURL, "corp_id": "corp1", "corp_secret": "секрет",
	})
	p, err := NewWeComPlugin(raw, zap.NewNop())
	require.NoError(t, err)
	return p
}

func TestWeComPlugin_FetchDepartments(t *testing.T) {
	srv := wecomServer(t)
	defer srv.Close()

	departments, err := newWeComPlugin(t, srv.URL).FetchDepartments(context.Background())
	require.NoError(t, err)
	require.Len(t, departments, 2)

	assert.Equal(t, "1", departments[0].Code)
	// parentid 0 — корень.
	assert.Equal(t, "", departments[0].Parent)
	assert.Equal(t, "1", departments[1].Parent)
}

func TestWeComPlugin_FetchUsers_DedupesAcrossRoots(t *testing.T) {
	srv := wecomServer(t)
	defer srv.Close()

	users, err := newWeComPlugin(t, srv.URL).FetchUsers(context.Background())
	require.NoError(t, err)
	require.Len(t, users, 2)

	assert.Equal(t, "zhang", users[0].Code)
	assert.Equal(t, "Чжан", users[0].Properties["full_name"])
	assert.Equal(t, []string{"1", "2"}, users[0].Departments)
	assert.Equal(t, []string{"li"}, users[0].Leaders)
}

func TestWeComPlugin_APIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"errcode":40013,"errmsg":"invalid corpid"}`)
	}))
	defer srv.Close()

	res := newWeComPlugin(t, srv.URL).TestConnection(context.Background())
	assert.Contains(t, res.ErrorMessage, "40013")
}
