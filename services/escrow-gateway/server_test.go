package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	jwt "github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"nhooyr.io/websocket"

	"trustescrow/core"
	"trustescrow/core/state"
	"trustescrow/gateway/middleware"
	"trustescrow/native/common"
	"trustescrow/services/activitylog"
	"trustescrow/storage"
)

const (
	payerAddr   = "0x1111111111111111111111111111111111111111"
	payeeAddr   = "0x2222222222222222222222222222222222222222"
	arbiterAddr = "0x3333333333333333333333333333333333333333"
	jwtSecret   = "gateway-test-secret"
)

type testEnv struct {
	t        *testing.T
	server   *Server
	store    *SQLiteStore
	activity *activitylog.Store
	clock    int64
}

func newTestEnv(t *testing.T, mutate ...func(*ServerOptions)) *testEnv {
	t.Helper()
	env := &testEnv{t: t, clock: 1_000}

	db, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())), &gorm.Config{})
	require.NoError(t, err)
	env.activity, err = activitylog.New(db, nil)
	require.NoError(t, err)

	env.store, err = NewSQLiteStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = env.store.Close() })

	settlement := core.NewSettlement(state.NewManager(storage.NewMemDB()),
		core.WithActivitySink(env.activity),
		core.WithNowFunc(func() int64 { return env.clock }),
	)
	opts := ServerOptions{
		Settlement: settlement,
		Store:      env.store,
		Activity:   env.activity,
	}
	for _, fn := range mutate {
		fn(&opts)
	}
	env.server, err = NewServer(opts)
	require.NoError(t, err)
	return env
}

func (e *testEnv) do(method, path string, body interface{}, headers ...string) *httptest.ResponseRecorder {
	e.t.Helper()
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		require.NoError(e.t, err)
	}
	req := httptest.NewRequest(method, path, bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	res := httptest.NewRecorder()
	e.server.ServeHTTP(res, req)
	return res
}

func (e *testEnv) decode(res *httptest.ResponseRecorder, out interface{}) {
	e.t.Helper()
	require.NoError(e.t, json.Unmarshal(res.Body.Bytes(), out), res.Body.String())
}

func (e *testEnv) deposit(addr, amount string) {
	e.t.Helper()
	res := e.do(http.MethodPost, "/accounts/"+addr+"/deposit", map[string]string{"amount": amount})
	require.Equal(e.t, http.StatusOK, res.Code, res.Body.String())
}

func escrowID(b byte) string {
	return strings.Repeat(fmt.Sprintf("%02x", b), 32)
}

func (e *testEnv) createEscrow(id string, amount string) escrowJSON {
	e.t.Helper()
	res := e.do(http.MethodPost, "/escrow/create", escrowCreateRequest{
		ID:       id,
		Payer:    payerAddr,
		Payee:    payeeAddr,
		Arbiter:  arbiterAddr,
		Amount:   amount,
		Deadline: e.clock + 3600,
	})
	require.Equal(e.t, http.StatusCreated, res.Code, res.Body.String())
	var out escrowJSON
	e.decode(res, &out)
	return out
}

func requireProblem(t *testing.T, res *httptest.ResponseRecorder, status int, code string) {
	t.Helper()
	require.Equal(t, status, res.Code, res.Body.String())
	var body map[string]string
	require.NoError(t, json.Unmarshal(res.Body.Bytes(), &body))
	require.Equal(t, code, body["code"])
	require.NotEmpty(t, body["message"])
}

func TestEscrowLifecycleOverHTTP(t *testing.T) {
	env := newTestEnv(t)
	env.deposit(payerAddr, "1000")

	created := env.createEscrow(escrowID(0xa1), "100")
	require.Equal(t, escrowID(0xa1), created.ID)
	require.Equal(t, "Funded", created.Status)
	require.Equal(t, payerAddr, created.Payer)

	res := env.do(http.MethodGet, "/accounts/"+payerAddr, nil)
	require.Equal(t, http.StatusOK, res.Code)
	var acc accountJSON
	env.decode(res, &acc)
	require.Equal(t, "900", acc.Available)
	require.Equal(t, "100", acc.Locked)

	res = env.do(http.MethodPost, "/escrow/"+created.ID+"/release", escrowActorRequest{Caller: arbiterAddr})
	require.Equal(t, http.StatusOK, res.Code, res.Body.String())
	var released escrowJSON
	env.decode(res, &released)
	require.Equal(t, "Released", released.Status)
	require.Equal(t, "100", released.PayeePaid)
	require.Equal(t, "0", released.Remaining)

	res = env.do(http.MethodGet, "/accounts/"+payeeAddr, nil)
	env.decode(res, &acc)
	require.Equal(t, "100", acc.Available)

	res = env.do(http.MethodGet, "/agents/"+payeeAddr, nil)
	require.Equal(t, http.StatusOK, res.Code, res.Body.String())
	var profile profileJSON
	env.decode(res, &profile)
	require.Equal(t, uint64(1), profile.SuccessfulReleases)

	res = env.do(http.MethodGet, "/activity?module=escrow", nil)
	require.Equal(t, http.StatusOK, res.Code)
	var listed struct {
		Entries []struct {
			Type       string            `json:"type"`
			Subject    string            `json:"subject"`
			Attributes map[string]string `json:"attributes"`
		} `json:"entries"`
	}
	env.decode(res, &listed)
	require.Len(t, listed.Entries, 2)
	require.Equal(t, "escrow.created", listed.Entries[0].Type)
	require.Equal(t, "escrow.released", listed.Entries[1].Type)

	res = env.do(http.MethodGet, "/activity?module=account", nil)
	require.Equal(t, http.StatusOK, res.Code)
	var deposits struct {
		Entries []struct {
			Type       string            `json:"type"`
			Attributes map[string]string `json:"attributes"`
		} `json:"entries"`
	}
	env.decode(res, &deposits)
	require.Len(t, deposits.Entries, 1)
	require.Equal(t, "account.deposited", deposits.Entries[0].Type)
	require.Equal(t, "1000", deposits.Entries[0].Attributes["amount"])

	res = env.do(http.MethodGet, "/activity/verify", nil)
	require.Equal(t, http.StatusOK, res.Code, res.Body.String())
}

func TestErrorsMapToStatusByKind(t *testing.T) {
	env := newTestEnv(t)
	env.deposit(payerAddr, "1000")
	esc := env.createEscrow(escrowID(0xb1), "100")

	requireProblem(t, env.do(http.MethodGet, "/escrow/"+escrowID(0xff), nil), http.StatusNotFound, "UnknownEscrow")
	requireProblem(t, env.do(http.MethodGet, "/escrow/nothex", nil), http.StatusBadRequest, "InvalidRequest")
	requireProblem(t, env.do(http.MethodGet, "/accounts/0x12", nil), http.StatusBadRequest, "InvalidAddress")
	requireProblem(t, env.do(http.MethodPost, "/escrow/"+esc.ID+"/release", escrowActorRequest{Caller: payeeAddr}),
		http.StatusForbidden, "Unauthorized")
	requireProblem(t, env.do(http.MethodPost, "/escrow/create", escrowCreateRequest{
		ID: escrowID(0xb1), Payer: payerAddr, Payee: payeeAddr, Arbiter: arbiterAddr, Amount: "1", Deadline: env.clock + 10,
	}), http.StatusConflict, "DuplicateId")
	requireProblem(t, env.do(http.MethodPost, "/escrow/create", map[string]interface{}{"unexpected": true}),
		http.StatusBadRequest, "InvalidRequest")

	env.createEscrow(escrowID(0xb2), "100")
	res := env.do(http.MethodPost, "/chain/link", chainLinkRequest{Parent: escrowID(0xb1), Child: escrowID(0xb2)})
	require.Equal(t, http.StatusCreated, res.Code, res.Body.String())
	requireProblem(t, env.do(http.MethodPost, "/chain/link", chainLinkRequest{Parent: escrowID(0xb2), Child: escrowID(0xb1)}),
		http.StatusUnprocessableEntity, "CycleDetected")
	requireProblem(t, env.do(http.MethodPost, "/escrow/"+escrowID(0xb2)+"/release", escrowActorRequest{Caller: arbiterAddr}),
		http.StatusUnprocessableEntity, "ParentNotComplete")

	res = env.do(http.MethodGet, "/chain/"+escrowID(0xb2)+"/can-release", nil)
	require.Equal(t, http.StatusOK, res.Code)
	var gate map[string]bool
	env.decode(res, &gate)
	require.False(t, gate["canRelease"])
}

func TestIdempotencyKeyReplaysResponse(t *testing.T) {
	env := newTestEnv(t)
	env.deposit(payerAddr, "1000")
	req := escrowCreateRequest{Payer: payerAddr, Payee: payeeAddr, Arbiter: arbiterAddr, Amount: "100", Deadline: env.clock + 3600}

	first := env.do(http.MethodPost, "/escrow/create", req, headerIdempotencyKey, "create-1")
	require.Equal(t, http.StatusCreated, first.Code, first.Body.String())
	second := env.do(http.MethodPost, "/escrow/create", req, headerIdempotencyKey, "create-1")
	require.Equal(t, http.StatusCreated, second.Code)
	require.Equal(t, "true", second.Header().Get(headerReplayed))
	require.JSONEq(t, first.Body.String(), second.Body.String())

	res := env.do(http.MethodGet, "/accounts/"+payerAddr, nil)
	var acc accountJSON
	env.decode(res, &acc)
	require.Equal(t, "100", acc.Locked)

	req.Amount = "200"
	requireProblem(t, env.do(http.MethodPost, "/escrow/create", req, headerIdempotencyKey, "create-1"),
		http.StatusConflict, "IdempotencyMismatch")

	entries, err := env.store.AuditEntries(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, entries, 4)
	require.Equal(t, http.StatusConflict, entries[0].ResponseStatus)
	require.Equal(t, "/escrow/create", entries[0].Path)
}

func TestStreamOverHTTP(t *testing.T) {
	env := newTestEnv(t)
	env.deposit(payerAddr, "1000")

	res := env.do(http.MethodPost, "/stream/create", streamCreateRequest{
		ID:            escrowID(0xc1),
		Sender:        payerAddr,
		Receiver:      payeeAddr,
		RatePerSecond: "1",
		Budget:        "100",
	})
	require.Equal(t, http.StatusCreated, res.Code, res.Body.String())
	var st streamJSON
	env.decode(res, &st)
	require.Equal(t, "active", st.Status)
	require.Equal(t, "1", st.RatePerSecond)

	env.clock += 10
	res = env.do(http.MethodGet, "/stream/"+escrowID(0xc1), nil)
	require.Equal(t, http.StatusOK, res.Code, res.Body.String())
	var view streamStateResponse
	env.decode(res, &view)
	require.Equal(t, "10", view.Snapshot.Streamed)
	require.Equal(t, "90", view.Snapshot.Remaining)

	res = env.do(http.MethodPost, "/stream/"+escrowID(0xc1)+"/withdraw", nil)
	require.Equal(t, http.StatusOK, res.Code, res.Body.String())
	var payout streamPayoutResponse
	env.decode(res, &payout)
	require.Equal(t, "10", payout.Amount)

	res = env.do(http.MethodPost, "/stream/"+escrowID(0xc1)+"/cancel", streamCancelRequest{Caller: payerAddr})
	require.Equal(t, http.StatusOK, res.Code, res.Body.String())
	env.decode(res, &payout)
	require.Equal(t, "90", payout.Amount)
	require.Equal(t, "cancelled", payout.Stream.Status)

	requireProblem(t, env.do(http.MethodPost, "/stream/create", streamCreateRequest{
		Sender: payerAddr, Receiver: payeeAddr, RatePerSecond: "-1", Budget: "10",
	}), http.StatusBadRequest, "InvalidRate")
}

func TestDisputeResolvedThroughAIVerdict(t *testing.T) {
	env := newTestEnv(t)
	env.deposit(payerAddr, "1000")
	esc := env.createEscrow(escrowID(0xd1), "100")

	res := env.do(http.MethodPost, "/escrow/"+esc.ID+"/dispute", escrowDisputeRequest{Caller: payerAddr, Reason: "not delivered"})
	require.Equal(t, http.StatusOK, res.Code, res.Body.String())

	res = env.do(http.MethodPost, "/arbitration/"+esc.ID+"/evidence", evidenceRequest{Submitter: payerAddr, Digest: escrowID(0xee)})
	require.Equal(t, http.StatusOK, res.Code, res.Body.String())
	res = env.do(http.MethodPost, "/arbitration/"+esc.ID+"/review", nil)
	require.Equal(t, http.StatusOK, res.Code, res.Body.String())

	requireProblem(t, env.do(http.MethodPost, "/arbitration/"+esc.ID+"/analyze", analyzeRequest{Decision: "MAYBE", Confidence: "0.5"}),
		http.StatusUnprocessableEntity, "InvalidVerdict")

	res = env.do(http.MethodPost, "/arbitration/"+esc.ID+"/analyze", analyzeRequest{Decision: "REFUND_TO_PAYER", Confidence: "0.9"})
	require.Equal(t, http.StatusOK, res.Code, res.Body.String())
	var c caseJSON
	env.decode(res, &c)
	require.Equal(t, "ai_verdict", c.Status)
	require.Equal(t, "0.9", c.Verdict.Confidence)
	require.Len(t, c.ClaimantEvidence, 1)

	res = env.do(http.MethodPost, "/arbitration/"+esc.ID+"/accept", nil)
	require.Equal(t, http.StatusOK, res.Code, res.Body.String())
	env.decode(res, &c)
	require.Equal(t, "resolved", c.Status)
	require.NotNil(t, c.FinalRatio)
	require.Equal(t, uint8(0), *c.FinalRatio)

	res = env.do(http.MethodGet, "/escrow/"+esc.ID, nil)
	var settled escrowJSON
	env.decode(res, &settled)
	require.Equal(t, "Refunded", settled.Status)
	require.Equal(t, "100", settled.PayerRefunded)
}

func TestCallerMustMatchTokenSubject(t *testing.T) {
	env := newTestEnv(t, func(o *ServerOptions) {
		o.Auth = middleware.AuthConfig{
			Enabled:        true,
			HMACSecret:     jwtSecret,
			OptionalPaths:  []string{"/healthz"},
			AllowAnonymous: true,
		}
	})
	sign := func(sub string) string {
		token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
			"sub":   sub,
			"scope": "escrow:read escrow:write",
			"exp":   time.Now().Add(time.Hour).Unix(),
		}).SignedString([]byte(jwtSecret))
		require.NoError(t, err)
		return "Bearer " + token
	}

	res := env.do(http.MethodPost, "/accounts/"+payerAddr+"/deposit", depositRequest{Amount: "10"})
	require.Equal(t, http.StatusUnauthorized, res.Code)

	res = env.do(http.MethodPost, "/accounts/"+payerAddr+"/deposit", depositRequest{Amount: "500"}, "Authorization", sign(payerAddr))
	require.Equal(t, http.StatusOK, res.Code, res.Body.String())

	requireProblem(t, env.do(http.MethodPost, "/escrow/create", escrowCreateRequest{
		Payer: payerAddr, Payee: payeeAddr, Arbiter: arbiterAddr, Amount: "10", Deadline: env.clock + 60,
	}, "Authorization", sign(payeeAddr)), http.StatusForbidden, "CallerMismatch")

	res = env.do(http.MethodGet, "/healthz", nil)
	require.Equal(t, http.StatusOK, res.Code)
}

func TestActivityWebsocketStreamsCommittedEntries(t *testing.T) {
	env := newTestEnv(t)
	env.deposit(payerAddr, "1000")
	ts := httptest.NewServer(env.server)
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(ts.URL, "http")+"/activity/ws?module=escrow", nil)
	require.NoError(t, err)
	defer conn.Close(websocket.StatusNormalClosure, "done")

	env.createEscrow(escrowID(0xe1), "100")

	_, data, err := conn.Read(ctx)
	require.NoError(t, err)
	var entry struct {
		Sequence   int64             `json:"sequence"`
		Type       string            `json:"type"`
		Attributes map[string]string `json:"attributes"`
	}
	require.NoError(t, json.Unmarshal(data, &entry))
	require.Equal(t, "escrow.created", entry.Type)
	require.Equal(t, escrowID(0xe1), entry.Attributes["id"])
}

func TestPausedModuleReturnsConflict(t *testing.T) {
	env := newTestEnv(t)
	env.deposit(payerAddr, "1000")
	paused := core.NewSettlement(state.NewManager(storage.NewMemDB()),
		core.WithPauses(common.NewStaticPauses([]string{"escrow"})),
		core.WithNowFunc(func() int64 { return env.clock }),
	)
	server, err := NewServer(ServerOptions{Settlement: paused, Store: env.store})
	require.NoError(t, err)

	body, _ := json.Marshal(escrowCreateRequest{Payer: payerAddr, Payee: payeeAddr, Arbiter: arbiterAddr, Amount: "1", Deadline: env.clock + 60})
	res := httptest.NewRecorder()
	server.ServeHTTP(res, httptest.NewRequest(http.MethodPost, "/escrow/create", bytes.NewReader(body)))
	requireProblem(t, res, http.StatusConflict, "ModulePaused")

	res = httptest.NewRecorder()
	server.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/activity", nil))
	require.Equal(t, http.StatusServiceUnavailable, res.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	env := newTestEnv(t)
	env.do(http.MethodGet, "/healthz", nil)
	res := env.do(http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, res.Code)
	require.Contains(t, res.Body.String(), "go_goroutines")
}

func TestCreateSpendsDoubleRateBudget(t *testing.T) {
	env := newTestEnv(t, func(o *ServerOptions) {
		o.RateLimit = middleware.RateLimit{RatePerSecond: 0.001, Burst: 3}
	})
	env.deposit(payerAddr, "1000")
	env.createEscrow(escrowID(0xf1), "10")

	res := env.do(http.MethodPost, "/escrow/create", escrowCreateRequest{
		ID: escrowID(0xf2), Payer: payerAddr, Payee: payeeAddr, Arbiter: arbiterAddr, Amount: "10", Deadline: env.clock + 60,
	})
	requireProblem(t, res, http.StatusTooManyRequests, "RateLimited")

	res = env.do(http.MethodGet, "/escrow/"+escrowID(0xf1), nil)
	require.Equal(t, http.StatusOK, res.Code)
}
