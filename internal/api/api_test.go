package api

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/netip"
	"strconv"
	"testing"
	"time"

	"filippo.io/age"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/erazemk/orozarna/internal/auth"
	"github.com/erazemk/orozarna/internal/custody"
	"github.com/erazemk/orozarna/internal/db"
	"github.com/erazemk/orozarna/internal/model"
	"github.com/erazemk/orozarna/internal/serial"
	"github.com/erazemk/orozarna/internal/store"
)

const testJWTSecret = "test-secret"

type testServer struct {
	*httptest.Server
	db *sql.DB
}

func setupTestServer(t *testing.T, trustedProxies ...netip.Prefix) *testServer {
	t.Helper()
	database := db.NewTestDB(t)

	identity, err := age.GenerateX25519Identity()
	require.NoError(t, err)
	svc := custody.NewService(database)
	svc.Serial = serial.NewAgeCipher(identity)

	server := httptest.NewServer(NewRouter(database, svc, testJWTSecret, trustedProxies...))
	t.Cleanup(server.Close)
	return &testServer{Server: server, db: database}
}

// createUser inserts a user and returns a token for it without going through
// the rate limited login endpoint.
func (s *testServer) createUser(t *testing.T, username string, role model.Role, verifiedAdult bool) (*model.User, string) {
	t.Helper()
	hash, err := auth.HashPassword("password")
	require.NoError(t, err)
	user, err := store.CreateUser(context.Background(), s.db, username, hash, role, verifiedAdult)
	require.NoError(t, err)
	token, err := auth.GenerateToken(testJWTSecret, user, time.Now())
	require.NoError(t, err)
	return user, token
}

func (s *testServer) do(t *testing.T, method, path, token string, body any) *http.Response {
	t.Helper()
	return s.doWithHeader(t, method, path, token, body, nil)
}

func (s *testServer) doWithHeader(t *testing.T, method, path, token string, body any, header http.Header) *http.Response {
	t.Helper()
	var data []byte
	if body != nil {
		var err error
		data, err = json.Marshal(body)
		require.NoError(t, err)
	}

	req, err := http.NewRequest(method, s.URL+path, bytes.NewReader(data))
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range header {
		req.Header[k] = v
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func TestLoginEndpoint(t *testing.T) {
	s := setupTestServer(t)
	s.createUser(t, "admin", model.RoleAdmin, false)

	resp := s.do(t, http.MethodPost, "/api/auth/login", "", map[string]string{"username": "admin", "password": "wrong"})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = s.do(t, http.MethodPost, "/api/auth/login", "", map[string]string{"username": "admin"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = s.do(t, http.MethodPost, "/api/auth/login", "", map[string]string{"username": "admin", "password": "password"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	login := decode[struct {
		Token string      `json:"token"`
		User  *model.User `json:"user"`
	}](t, resp)
	assert.NotEmpty(t, login.Token)
	assert.Equal(t, model.RoleAdmin, login.User.Role)

	resp = s.do(t, http.MethodGet, "/api/kits", login.Token, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestLoginRateLimited(t *testing.T) {
	s := setupTestServer(t)
	s.createUser(t, "admin", model.RoleAdmin, false)

	var last int
	for range loginBurst + 1 {
		resp := s.do(t, http.MethodPost, "/api/auth/login", "", map[string]string{"username": "admin", "password": "wrong"})
		last = resp.StatusCode
	}
	assert.Equal(t, http.StatusTooManyRequests, last)
}

func TestUnauthenticatedAccess(t *testing.T) {
	s := setupTestServer(t)

	resp := s.do(t, http.MethodGet, "/api/kits", "", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = s.do(t, http.MethodGet, "/api/kits", "not-a-token", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestLogoutRevokesToken(t *testing.T) {
	s := setupTestServer(t)
	_, token := s.createUser(t, "coach", model.RoleCoach, false)

	resp := s.do(t, http.MethodPost, "/api/auth/logout", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = s.do(t, http.MethodGet, "/api/kits", token, nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestChangePassword(t *testing.T) {
	s := setupTestServer(t)
	_, token := s.createUser(t, "coach", model.RoleCoach, false)

	resp := s.do(t, http.MethodPut, "/api/auth/password", token,
		map[string]string{"current_password": "wrong-one", "new_password": "new-password"})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = s.do(t, http.MethodPut, "/api/auth/password", token,
		map[string]string{"current_password": "password", "new_password": "short"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = s.do(t, http.MethodPut, "/api/auth/password", token,
		map[string]string{"current_password": "password", "new_password": "new-password"})
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp = s.do(t, http.MethodPost, "/api/auth/login", "", map[string]string{"username": "coach", "password": "new-password"})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestUserManagement(t *testing.T) {
	s := setupTestServer(t)
	adminUser, adminToken := s.createUser(t, "admin", model.RoleAdmin, false)
	_, coachToken := s.createUser(t, "coach", model.RoleCoach, false)

	resp := s.do(t, http.MethodGet, "/api/users", coachToken, nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp = s.do(t, http.MethodPost, "/api/users", adminToken,
		map[string]any{"username": "petra", "password": "password", "role": "member", "verified_adult": true})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	petra := decode[model.User](t, resp)
	assert.True(t, petra.VerifiedAdult)
	assert.Equal(t, model.RoleMember, petra.Role)

	resp = s.do(t, http.MethodPost, "/api/users", adminToken,
		map[string]any{"username": "petra", "password": "password", "role": "member"})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp = s.do(t, http.MethodPost, "/api/users", adminToken,
		map[string]any{"username": "x", "password": "password", "role": "wizard"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = s.do(t, http.MethodPut, "/api/users/"+itoa(petra.ID), adminToken,
		map[string]any{"role": "coach", "verified_adult": false})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	updated := decode[model.User](t, resp)
	assert.Equal(t, model.RoleCoach, updated.Role)
	assert.False(t, updated.VerifiedAdult)

	resp = s.do(t, http.MethodDelete, "/api/users/"+itoa(adminUser.ID), adminToken, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode, "self-deletion")

	resp = s.do(t, http.MethodDelete, "/api/users/"+itoa(petra.ID), adminToken, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp = s.do(t, http.MethodDelete, "/api/users/"+itoa(petra.ID), adminToken, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = s.do(t, http.MethodGet, "/api/users/999", adminToken, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestDeletedUserTokenRejected(t *testing.T) {
	s := setupTestServer(t)
	_, adminToken := s.createUser(t, "admin", model.RoleAdmin, false)
	coach, coachToken := s.createUser(t, "coach", model.RoleCoach, false)

	resp := s.do(t, http.MethodDelete, "/api/users/"+itoa(coach.ID), adminToken, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = s.do(t, http.MethodGet, "/api/kits", coachToken, nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestKitCustodyFlow(t *testing.T) {
	s := setupTestServer(t)
	_, armorerToken := s.createUser(t, "marko", model.RoleArmorer, false)
	_, coachToken := s.createUser(t, "nina", model.RoleCoach, false)
	_, memberToken := s.createUser(t, "tim", model.RoleMember, false)

	resp := s.do(t, http.MethodPost, "/api/kits", coachToken, map[string]string{"code": "KIT-001", "name": "Foil kit"})
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp = s.do(t, http.MethodPost, "/api/kits", armorerToken,
		map[string]string{"code": "KIT-001", "name": "Foil kit", "serial": "SN-4411"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp = s.do(t, http.MethodPost, "/api/kits", armorerToken, map[string]string{"code": "KIT-001", "name": "Again"})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp = s.do(t, http.MethodPost, "/api/kits/KIT-001/checkout", memberToken, map[string]string{"custodian_name": "Alice"})
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp = s.do(t, http.MethodPost, "/api/kits/KIT-001/checkout", coachToken,
		map[string]string{"custodian_name": "Alice", "expected_return_date": "tomorrow"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = s.do(t, http.MethodPost, "/api/kits/KIT-001/checkout", coachToken, map[string]string{"custodian_name": "Alice"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	res := decode[custody.CustodyResult](t, resp)
	assert.Equal(t, model.KitStatusCheckedOut, res.Kit.Status)

	resp = s.do(t, http.MethodPost, "/api/kits/KIT-001/checkout", coachToken, map[string]string{"custodian_name": "Bob"})
	require.Equal(t, http.StatusConflict, resp.StatusCode)
	body := decode[map[string]string](t, resp)
	assert.Equal(t, "conflict", body["kind"])
	assert.Equal(t, "KitNotAvailable", body["code"])

	resp = s.do(t, http.MethodPost, "/api/kits/KIT-001/transfer", coachToken, map[string]string{"custodian_name": "Bob"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	// Checkin accepts an empty body.
	resp = s.do(t, http.MethodPost, "/api/kits/KIT-001/checkin", coachToken, nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp = s.do(t, http.MethodGet, "/api/kits/KIT-001/history", memberToken, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	history := decode[[]model.LedgerEntry](t, resp)
	require.Len(t, history, 3)
	assert.Equal(t, model.EventCheckoutOnPrem, history[0].EventType)
	assert.Equal(t, model.EventCheckin, history[2].EventType)

	resp = s.do(t, http.MethodGet, "/api/kits/KIT-001/history?order=desc&limit=1&event_type=transfer,checkin", memberToken, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	history = decode[[]model.LedgerEntry](t, resp)
	require.Len(t, history, 1)
	assert.Equal(t, model.EventCheckin, history[0].EventType)

	resp = s.do(t, http.MethodGet, "/api/kits/KIT-001/history?event_type=teleport", memberToken, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = s.do(t, http.MethodGet, "/api/kits/KIT-001/history?order=sideways", memberToken, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = s.do(t, http.MethodGet, "/api/kits/NOPE", memberToken, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestKitSerialVisibleToManagersOnly(t *testing.T) {
	s := setupTestServer(t)
	_, armorerToken := s.createUser(t, "marko", model.RoleArmorer, false)
	_, coachToken := s.createUser(t, "nina", model.RoleCoach, false)

	resp := s.do(t, http.MethodPost, "/api/kits", armorerToken,
		map[string]string{"code": "KIT-002", "name": "Epee kit", "serial": "SN-9001"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp = s.do(t, http.MethodGet, "/api/kits/KIT-002", armorerToken, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	got := decode[map[string]any](t, resp)
	assert.Equal(t, "SN-9001", got["serial"])
	assert.Equal(t, "available", got["status"])
	assert.Contains(t, got, "warnings")

	resp = s.do(t, http.MethodGet, "/api/kits/KIT-002", coachToken, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	got = decode[map[string]any](t, resp)
	assert.NotContains(t, got, "serial")
}

func TestMaintenanceEndpoints(t *testing.T) {
	s := setupTestServer(t)
	_, armorerToken := s.createUser(t, "marko", model.RoleArmorer, false)
	_, coachToken := s.createUser(t, "nina", model.RoleCoach, false)

	resp := s.do(t, http.MethodPost, "/api/kits", armorerToken, map[string]string{"code": "KIT-003", "name": "Sabre kit"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp = s.do(t, http.MethodPost, "/api/kits/KIT-003/maintenance/open", coachToken, nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp = s.do(t, http.MethodPost, "/api/kits/KIT-003/maintenance/open", armorerToken, map[string]string{"notes": "blade check"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp = s.do(t, http.MethodPost, "/api/kits/KIT-003/checkout", coachToken, map[string]string{"custodian_name": "Alice"})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	rounds := 40
	resp = s.do(t, http.MethodPost, "/api/kits/KIT-003/maintenance/close", armorerToken,
		map[string]any{"parts_replaced": "tip", "round_count": rounds})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	res := decode[custody.MaintenanceResult](t, resp)
	assert.Equal(t, model.KitStatusAvailable, res.Kit.Status)
	assert.NotNil(t, res.Kit.LastMaintenanceAt)

	resp = s.do(t, http.MethodGet, "/api/kits/KIT-003/warnings", coachToken, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	warnings := decode[model.Warnings](t, resp)
	assert.False(t, warnings.Any())
}

func TestOffsiteApprovalFlow(t *testing.T) {
	s := setupTestServer(t)
	_, armorerToken := s.createUser(t, "marko", model.RoleArmorer, false)
	_, coachToken := s.createUser(t, "nina", model.RoleCoach, false)
	petra, parentToken := s.createUser(t, "petra", model.RoleMember, true)
	_, juniorToken := s.createUser(t, "tim", model.RoleMember, false)

	resp := s.do(t, http.MethodPost, "/api/kits", armorerToken, map[string]string{"code": "KIT-004", "name": "Foil kit"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	submit := map[string]any{
		"kit_code":             "KIT-004",
		"custodian_name":       "Petra's son",
		"expected_return_date": "2030-06-01",
		"signature":            "Petra Novak",
		"accepted":             true,
	}

	resp = s.do(t, http.MethodPost, "/api/approvals", juniorToken, submit)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp = s.do(t, http.MethodPost, "/api/approvals", parentToken, map[string]any{
		"kit_code": "KIT-004", "custodian_name": "Petra's son", "signature": "Petra Novak", "accepted": false,
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = s.do(t, http.MethodPost, "/api/approvals", parentToken, submit)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	ar := decode[model.ApprovalRequest](t, resp)
	assert.Equal(t, model.ApprovalPending, ar.Status)
	assert.Equal(t, petra.ID, ar.RequesterID)
	assert.Equal(t, "127.0.0.1", ar.Attestation.OriginAddress)
	assert.NotEmpty(t, ar.Attestation.Text)

	resp = s.do(t, http.MethodPost, "/api/approvals", parentToken, submit)
	assert.Equal(t, http.StatusConflict, resp.StatusCode, "second pending request for the same kit")
	assert.Equal(t, "DuplicatePendingRequest", decode[map[string]string](t, resp)["code"])

	resp = s.do(t, http.MethodGet, "/api/approvals?status=pending", coachToken, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, decode[[]model.ApprovalRequest](t, resp), 1)

	resp = s.do(t, http.MethodGet, "/api/approvals", juniorToken, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Empty(t, decode[[]model.ApprovalRequest](t, resp))

	resp = s.do(t, http.MethodGet, "/api/approvals?status=pending", parentToken, nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode, "pending queue is for approvers")
	assert.Equal(t, "NotAuthorized", decode[map[string]string](t, resp)["code"])

	resp = s.do(t, http.MethodGet, "/api/approvals", parentToken, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, decode[[]model.ApprovalRequest](t, resp), 1)

	resp = s.do(t, http.MethodGet, "/api/approvals/"+itoa(ar.ID), juniorToken, nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp = s.do(t, http.MethodPost, "/api/approvals/"+itoa(ar.ID)+"/decision", parentToken, map[string]any{"approve": true})
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp = s.do(t, http.MethodPost, "/api/approvals/"+itoa(ar.ID)+"/decision", coachToken, map[string]any{"approve": true})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	decision := decode[custody.DecisionResult](t, resp)
	assert.Equal(t, model.ApprovalApproved, decision.Request.Status)
	require.NotNil(t, decision.Event)
	assert.Equal(t, model.EventCheckoutOffsite, decision.Event.EventType)
	assert.Equal(t, model.LocationOffSite, decision.Kit.LocationType)

	resp = s.do(t, http.MethodPost, "/api/approvals/"+itoa(ar.ID)+"/decision", armorerToken,
		map[string]any{"approve": false, "denial_reason": "too late"})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, "RequestNotPending", decode[map[string]string](t, resp)["code"])

	resp = s.do(t, http.MethodGet, "/api/users/"+itoa(petra.ID)+"/history", parentToken, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, decode[[]model.LedgerEntry](t, resp), 1)

	resp = s.do(t, http.MethodGet, "/api/users/"+itoa(petra.ID)+"/history", juniorToken, nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestAllWarningsEndpoint(t *testing.T) {
	s := setupTestServer(t)
	_, armorerToken := s.createUser(t, "marko", model.RoleArmorer, false)

	resp := s.do(t, http.MethodPost, "/api/kits", armorerToken, map[string]string{"code": "KIT-005", "name": "Foil kit"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	resp = s.do(t, http.MethodPost, "/api/kits/KIT-005/checkout", armorerToken,
		map[string]string{"custodian_name": "Alice", "expected_return_date": "2020-01-01"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp = s.do(t, http.MethodGet, "/api/warnings", armorerToken, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	warnings := decode[[]model.Warnings](t, resp)
	require.Len(t, warnings, 1)
	assert.Equal(t, "KIT-005", warnings[0].KitCode)
	assert.True(t, warnings[0].OverdueReturn)
}

func TestRequestIDHeader(t *testing.T) {
	s := setupTestServer(t)

	resp := s.do(t, http.MethodGet, "/api/kits", "", nil)
	assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))
}

func TestClientAddressIgnoresForwardedHeaderFromUntrustedPeer(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.RemoteAddr = "192.0.2.1:5555"
	assert.Equal(t, "192.0.2.1", clientAddress(r))

	r.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.1")
	assert.Equal(t, "192.0.2.1", resolveClientAddress(r.RemoteAddr, r.Header.Values("X-Forwarded-For"), nil))
}

func TestResolveClientAddress(t *testing.T) {
	trusted := []netip.Prefix{netip.MustParsePrefix("10.0.0.0/8"), netip.MustParsePrefix("127.0.0.1/32")}

	tests := []struct {
		name      string
		remote    string
		forwarded []string
		want      string
	}{
		{"no header", "10.0.0.1:80", nil, "10.0.0.1"},
		{"untrusted peer", "198.51.100.4:80", []string{"1.2.3.4"}, "198.51.100.4"},
		{"single hop", "10.0.0.1:80", []string{"203.0.113.9"}, "203.0.113.9"},
		{"client spoofs leftmost", "10.0.0.1:80", []string{"1.2.3.4, 203.0.113.9"}, "203.0.113.9"},
		{"chained proxies", "10.0.0.1:80", []string{"1.2.3.4, 203.0.113.9, 10.0.0.7"}, "203.0.113.9"},
		{"repeated headers", "10.0.0.1:80", []string{"1.2.3.4", "203.0.113.9, 10.0.0.7"}, "203.0.113.9"},
		{"all hops trusted", "10.0.0.1:80", []string{"10.0.0.9, 10.0.0.7"}, "10.0.0.9"},
		{"malformed hop", "10.0.0.1:80", []string{"garbage, 10.0.0.7"}, "10.0.0.7"},
		{"ipv4 mapped peer", "[::ffff:127.0.0.1]:80", []string{"203.0.113.9"}, "203.0.113.9"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, resolveClientAddress(tt.remote, tt.forwarded, trusted))
		})
	}
}

func TestLoginLimiterIgnoresRotatedForwardedHeader(t *testing.T) {
	s := setupTestServer(t)
	s.createUser(t, "admin", model.RoleAdmin, false)

	limited := 0
	for i := range 20 {
		header := http.Header{"X-Forwarded-For": {"203.0.113." + strconv.Itoa(i+1)}}
		resp := s.doWithHeader(t, http.MethodPost, "/api/auth/login", "",
			map[string]string{"username": "admin", "password": "wrong"}, header)
		if resp.StatusCode == http.StatusTooManyRequests {
			limited++
		}
	}
	assert.GreaterOrEqual(t, limited, 20-loginBurst)
}

func TestAttestationOriginNotTakenFromUntrustedHeader(t *testing.T) {
	s := setupTestServer(t)
	_, armorerToken := s.createUser(t, "marko", model.RoleArmorer, false)
	_, parentToken := s.createUser(t, "petra", model.RoleMember, true)

	resp := s.do(t, http.MethodPost, "/api/kits", armorerToken, map[string]string{"code": "KIT-006", "name": "Foil kit"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp = s.doWithHeader(t, http.MethodPost, "/api/approvals", parentToken, map[string]any{
		"kit_code": "KIT-006", "custodian_name": "Petra's son", "signature": "Petra Novak", "accepted": true,
	}, http.Header{"X-Forwarded-For": {"1.2.3.4"}})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	ar := decode[model.ApprovalRequest](t, resp)
	assert.Equal(t, "127.0.0.1", ar.Attestation.OriginAddress)
}

func TestAttestationOriginFromTrustedProxy(t *testing.T) {
	s := setupTestServer(t, netip.MustParsePrefix("127.0.0.1/32"))
	_, armorerToken := s.createUser(t, "marko", model.RoleArmorer, false)
	_, parentToken := s.createUser(t, "petra", model.RoleMember, true)

	resp := s.do(t, http.MethodPost, "/api/kits", armorerToken, map[string]string{"code": "KIT-007", "name": "Foil kit"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp = s.doWithHeader(t, http.MethodPost, "/api/approvals", parentToken, map[string]any{
		"kit_code": "KIT-007", "custodian_name": "Petra's son", "signature": "Petra Novak", "accepted": true,
	}, http.Header{"X-Forwarded-For": {"1.2.3.4, 198.51.100.7"}})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	ar := decode[model.ApprovalRequest](t, resp)
	assert.Equal(t, "198.51.100.7", ar.Attestation.OriginAddress)
}

func itoa(id int64) string {
	return strconv.FormatInt(id, 10)
}
