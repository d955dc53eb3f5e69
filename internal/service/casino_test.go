package service

import (
	"encoding/json"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"CasinoApi/pkg/store"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCasinoServer(t *testing.T) (*httptest.Server, *store.AccountStore) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	accounts, err := store.Open(filepath.Join(t.TempDir(), "users.json"))
	require.NoError(t, err)
	t.Cleanup(accounts.Close)

	hub := NewHub()
	registry := NewSessionRegistry()
	ledger := NewCreditLedger(accounts)
	timers := newManualTimers()

	roulette := NewRouletteService(hub, ledger, timers, nil)
	coinflip := NewCoinflipService(hub, ledger, nil)
	crash := NewCrashService(hub, ledger, registry, timers, nil)
	casino := NewCasino(hub, registry, ledger, accounts, roulette, coinflip, crash)

	r := gin.New()
	r.GET("/api/ws", casino.WebsocketHandler)

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv, accounts
}

func dialCasino(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func sendMsg(t *testing.T, conn *websocket.Conn, msgType string, data interface{}) {
	t.Helper()
	raw, err := json.Marshal(map[string]interface{}{"type": msgType, "data": data})
	require.NoError(t, err)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, raw))
}

// readEvent decodes one envelope. Data stays loosely typed because some
// events carry objects and some carry arrays.
func readEvent(t *testing.T, conn *websocket.Conn) (string, interface{}) {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, raw, err := conn.ReadMessage()
	require.NoError(t, err)

	var msg struct {
		Type string      `json:"type"`
		Data interface{} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(raw, &msg))
	return msg.Type, msg.Data
}

// readUntil skips events until one of the given type arrives.
func readUntil(t *testing.T, conn *websocket.Conn, want string) interface{} {
	t.Helper()
	for i := 0; i < 20; i++ {
		event, data := readEvent(t, conn)
		if event == want {
			return data
		}
	}
	t.Fatalf("never received %q", want)
	return nil
}

func asMap(t *testing.T, v interface{}) map[string]interface{} {
	t.Helper()
	m, ok := v.(map[string]interface{})
	require.True(t, ok, "expected object payload, got %T", v)
	return m
}

func TestWebsocketSendsRouletteStateOnConnect(t *testing.T) {
	srv, _ := newTestCasinoServer(t)
	conn := dialCasino(t, srv)

	event, data := readEvent(t, conn)
	assert.Equal(t, "rouletteState", event)
	state := asMap(t, data)
	assert.Contains(t, state, "history")
	assert.Contains(t, state, "currentBets")
}

func TestJoinCasinoUnknownUser(t *testing.T) {
	srv, _ := newTestCasinoServer(t)
	conn := dialCasino(t, srv)
	readEvent(t, conn) // initial rouletteState

	sendMsg(t, conn, "joinCasino", gin.H{"username": "ghost"})

	event, data := readEvent(t, conn)
	assert.Equal(t, "error", event)
	assert.Equal(t, "User not found. Please register first.", asMap(t, data)["message"])
}

func TestJoinCasinoKnownUser(t *testing.T) {
	srv, accounts := newTestCasinoServer(t)
	require.NoError(t, accounts.Create("alice", "hash", 10000))

	conn := dialCasino(t, srv)
	readEvent(t, conn) // initial rouletteState

	sendMsg(t, conn, "joinCasino", gin.H{"username": "alice"})

	data := asMap(t, readUntil(t, conn, "playerData"))
	assert.Equal(t, "alice", data["username"])
	assert.Equal(t, float64(10000), data["credits"])
}

func TestBetBeforeJoinRejected(t *testing.T) {
	srv, _ := newTestCasinoServer(t)
	conn := dialCasino(t, srv)
	readEvent(t, conn)

	sendMsg(t, conn, "placeRouletteBet", gin.H{"color": "red", "amount": 100})

	event, data := readEvent(t, conn)
	assert.Equal(t, "error", event)
	assert.Equal(t, "Please join the casino first", asMap(t, data)["message"])
}

func TestPlaceRouletteBetOverWire(t *testing.T) {
	srv, accounts := newTestCasinoServer(t)
	require.NoError(t, accounts.Create("alice", "hash", 10000))

	conn := dialCasino(t, srv)
	readEvent(t, conn)

	sendMsg(t, conn, "joinCasino", gin.H{"username": "alice"})
	readUntil(t, conn, "availableRooms") // join acks done

	sendMsg(t, conn, "placeRouletteBet", gin.H{"color": "red", "amount": 100})

	data := asMap(t, readUntil(t, conn, "playerData"))
	assert.Equal(t, float64(9900), data["credits"])

	update := asMap(t, readUntil(t, conn, "rouletteBetsUpdate"))
	assert.Len(t, update["bets"], 1)
}

func TestUnknownMessageType(t *testing.T) {
	srv, _ := newTestCasinoServer(t)
	conn := dialCasino(t, srv)
	readEvent(t, conn)

	sendMsg(t, conn, "blackjack", gin.H{})

	event, data := readEvent(t, conn)
	assert.Equal(t, "error", event)
	assert.Equal(t, "Unknown message type", asMap(t, data)["message"])
}

func TestDisconnectPersistsBalance(t *testing.T) {
	srv, accounts := newTestCasinoServer(t)
	require.NoError(t, accounts.Create("alice", "hash", 10000))

	conn := dialCasino(t, srv)
	readEvent(t, conn)
	sendMsg(t, conn, "joinCasino", gin.H{"username": "alice"})
	readUntil(t, conn, "availableRooms")

	sendMsg(t, conn, "placeRouletteBet", gin.H{"color": "red", "amount": 250})
	readUntil(t, conn, "rouletteBetsUpdate")

	conn.Close()

	require.Eventually(t, func() bool {
		acc, ok := accounts.Lookup("alice")
		return ok && acc.Credits == 9750
	}, 2*time.Second, 10*time.Millisecond)
}
