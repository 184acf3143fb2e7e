package dispatch

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/goodimpact/backoffice-api/internal/domain/order"
	"github.com/goodimpact/backoffice-api/internal/domain/points"
	"github.com/goodimpact/backoffice-api/internal/domain/user"
	"github.com/goodimpact/backoffice-api/internal/middleware"
	"github.com/goodimpact/backoffice-api/internal/pkg/database/dbtest"
	jwtpkg "github.com/goodimpact/backoffice-api/internal/pkg/jwt"
)

type handlerFixture struct {
	*surfaceFixture
	hub    *Hub
	server *httptest.Server
	token  string
}

func newHandlerFixture(t *testing.T) *handlerFixture {
	t.Helper()
	db := dbtest.Open(t)
	hub := NewHub(nil)
	go hub.Run()
	t.Cleanup(hub.Shutdown)

	ledger := points.NewRepository(db)
	engine := order.NewService(order.NewRepository(db), points.NewService(ledger), hub)
	surface := NewSurface(engine, SurfaceConfig{Offsets: testOffsets, NearETAEnabled: true})
	actor := dbtest.User(t, db, user.RoleOperator, 0)
	shop := dbtest.Shop(t, db, actor)

	jwtSvc := jwtpkg.NewService("secret", time.Minute)
	token, err := jwtSvc.GenerateAccessToken(actor, string(user.RoleOperator))
	if err != nil {
		t.Fatalf("token: %v", err)
	}

	h := NewHandler(surface, hub, engine, 20*time.Millisecond, nil)
	r := chi.NewRouter()
	r.Route("/shops/{shopID}", func(r chi.Router) {
		r.Use(middleware.Auth(jwtSvc))
		r.Use(middleware.RequireOperator())
		r.Use(middleware.RequireShopAccess(engine, "shopID"))
		r.Mount("/", h.Routes())
	})
	server := httptest.NewServer(r)
	t.Cleanup(server.Close)

	return &handlerFixture{
		surfaceFixture: &surfaceFixture{
			db:      db,
			surface: surface,
			ledger:  ledger,
			owner:   dbtest.User(t, db, user.RoleCustomer, 0),
			shop:    shop,
			actor:   actor,
		},
		hub:    hub,
		server: server,
		token:  token,
	}
}

func (f *handlerFixture) post(t *testing.T, path, body string) *http.Response {
	t.Helper()
	req, _ := http.NewRequest(http.MethodPost, f.server.URL+"/shops/"+f.shop.String()+path, strings.NewReader(body))
	req.Header.Set("Authorization", "Bearer "+f.token)
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request %s: %v", path, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func errorCode(t *testing.T, resp *http.Response) string {
	t.Helper()
	var body struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return body.Error.Code
}

func readAction(t *testing.T, conn *websocket.Conn, kind ActionKind) Action {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	for {
		var msg SessionMessage
		if err := conn.ReadJSON(&msg); err != nil {
			t.Fatalf("waiting for %s action: %v", kind, err)
		}
		if msg.Type == MessageAction && msg.Action != nil && msg.Action.Kind == kind {
			return *msg.Action
		}
	}
}

func TestWebSocketPushesNextAction(t *testing.T) {
	f := newHandlerFixture(t)
	pending := f.seed(t, dbtest.OrderSeed{Status: "pending", SentAt: time.Now().Add(-time.Minute)})

	wsURL := "ws" + strings.TrimPrefix(f.server.URL, "http") + "/shops/" + f.shop.String() + "/dispatch/ws?token=" + f.token
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("ws dial failed: %v", err)
	}
	defer conn.Close()
	if resp.StatusCode != http.StatusSwitchingProtocols {
		t.Fatalf("expected 101, got %d", resp.StatusCode)
	}

	first := readAction(t, conn, ActionAcceptOrRefuse)
	if first.Order == nil || first.Order.ID != pending {
		t.Fatalf("expected %s to be offered, got %+v", pending, first.Order)
	}

	r := f.post(t, "/orders/"+pending.String()+"/refuse", `{"reason": "closing early"}`)
	if r.StatusCode != http.StatusOK {
		t.Fatalf("refuse: expected 200, got %d", r.StatusCode)
	}

	idle := readAction(t, conn, ActionIdle)
	if idle.ActiveCount != 0 || idle.PendingCount != 0 {
		t.Fatalf("unexpected idle action %+v", idle)
	}
}

func TestWebSocketRejectsForeignShop(t *testing.T) {
	f := newHandlerFixture(t)

	wsURL := "ws" + strings.TrimPrefix(f.server.URL, "http") + "/shops/" + uuid.NewString() + "/dispatch/ws?token=" + f.token
	_, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err == nil {
		t.Fatal("dial to a foreign shop should fail")
	}
	if resp == nil || resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403, got %#v", resp)
	}
}

func TestCommitHandlers(t *testing.T) {
	f := newHandlerFixture(t)
	requested := time.Now().Add(time.Hour)
	pending := f.seed(t, dbtest.OrderSeed{Status: "pending", RequestedReadyAt: &requested})

	early, _ := json.Marshal(ETARequest{ETA: requested, ETATouched: true})
	r := f.post(t, "/orders/"+pending.String()+"/accept", string(early))
	if r.StatusCode != http.StatusUnprocessableEntity || errorCode(t, r) != "LEAD_TIME_NOT_MET" {
		t.Fatalf("expected 422 LEAD_TIME_NOT_MET, got %d", r.StatusCode)
	}

	if r := f.post(t, "/orders/"+pending.String()+"/accept", `{"eta":`); r.StatusCode != http.StatusBadRequest {
		t.Fatalf("malformed body: expected 400, got %d", r.StatusCode)
	}
	if r := f.post(t, "/orders/"+pending.String()+"/accept", `{}`); r.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("missing eta: expected 422, got %d", r.StatusCode)
	}
	if r := f.post(t, "/orders/"+pending.String()+"/advance", `{"status": "refunded"}`); r.StatusCode != http.StatusBadRequest {
		t.Fatalf("invalid advance: expected 400, got %d", r.StatusCode)
	}
	if r := f.post(t, "/orders/"+uuid.NewString()+"/refuse", `{}`); r.StatusCode != http.StatusNotFound {
		t.Fatalf("unknown order: expected 404, got %d", r.StatusCode)
	}

	ok, _ := json.Marshal(ETARequest{ETA: requested.Add(testOffsets.Delivery), ETATouched: true})
	r = f.post(t, "/orders/"+pending.String()+"/accept", string(ok))
	if r.StatusCode != http.StatusOK {
		t.Fatalf("accept: expected 200, got %d", r.StatusCode)
	}
	var body struct {
		Data CommitResponse `json:"data"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Data.Order == nil || body.Data.Order.Status != order.StatusConfirmed || body.Data.Order.Label != "Accepted" {
		t.Fatalf("unexpected committed order %+v", body.Data.Order)
	}
	if body.Data.Next.Kind != ActionIdle || body.Data.Next.ActiveCount != 1 {
		t.Fatalf("unexpected next action %+v", body.Data.Next)
	}
}
