package service

import (
	"encoding/json"
	"net/http"
	"strings"

	"CasinoApi/pkg/logger"
	"CasinoApi/pkg/store"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// upgrader is used to upgrade HTTP connections to WebSocket connections.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

var validate = validator.New()

// Casino wires the realtime protocol to the game services: it upgrades
// connections, dispatches the named client messages and runs the disconnect
// cleanup.
type Casino struct {
	hub      *Hub
	registry *SessionRegistry
	ledger   *CreditLedger
	accounts *store.AccountStore
	roulette *RouletteService
	coinflip *CoinflipService
	crash    *CrashService
}

func NewCasino(hub *Hub, registry *SessionRegistry, ledger *CreditLedger,
	accounts *store.AccountStore, roulette *RouletteService,
	coinflip *CoinflipService, crash *CrashService) *Casino {
	return &Casino{
		hub:      hub,
		registry: registry,
		ledger:   ledger,
		accounts: accounts,
		roulette: roulette,
		coinflip: coinflip,
		crash:    crash,
	}
}

type inboundMessage struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

type joinCasinoMsg struct {
	Username string `json:"username" validate:"required"`
}

type placeRouletteBetMsg struct {
	Color  string `json:"color" validate:"required,oneof=red black green"`
	Amount int64  `json:"amount" validate:"required,gt=0"`
}

type createRoomMsg struct {
	BetAmount int64  `json:"betAmount" validate:"required,gt=0"`
	Choice    string `json:"choice" validate:"required,oneof=Heads Tails"`
}

type roomRefMsg struct {
	RoomID string `json:"roomId" validate:"required"`
}

type placeCrashBetMsg struct {
	Amount      int64   `json:"amount" validate:"required,gt=0"`
	AutoCashout float64 `json:"autoCashout" validate:"gte=0"`
}

// WebsocketHandler upgrades the connection and runs its read loop. Every
// connection immediately receives the current roulette state, join or not.
func (cs *Casino) WebsocketHandler(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.Error("WebSocket upgrade failed: %v", err)
		return
	}

	client := &Client{ID: uuid.NewString(), conn: conn}
	cs.hub.Add(client)
	logger.Info("Player connected: %s", client.ID)

	client.Send("rouletteState", cs.roulette.State())

	defer cs.disconnect(client)

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			break
		}

		var msg inboundMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			client.Send("error", gin.H{"message": "Invalid message"})
			continue
		}
		cs.dispatch(client, msg)
	}
}

func (cs *Casino) dispatch(client *Client, msg inboundMessage) {
	fail := func(message string) {
		client.Send("error", gin.H{"message": message})
	}

	switch msg.Type {
	case "joinCasino":
		var payload joinCasinoMsg
		if err := decode(msg.Data, &payload); err != nil {
			fail("Please provide a valid username")
			return
		}
		cs.joinCasino(client, strings.TrimSpace(payload.Username))

	case "placeRouletteBet":
		sess, ok := cs.registry.Get(client.ID)
		if !ok {
			fail("Please join the casino first")
			return
		}
		var payload placeRouletteBetMsg
		if err := decode(msg.Data, &payload); err != nil {
			fail(err.Error())
			return
		}
		if err := cs.roulette.PlaceBet(sess, payload.Color, payload.Amount); err != nil {
			fail(err.Error())
		}

	case "clearRouletteBet":
		sess, ok := cs.registry.Get(client.ID)
		if !ok {
			return
		}
		if err := cs.roulette.ClearBet(sess); err != nil {
			fail(err.Error())
		}

	case "createRoom":
		sess, ok := cs.registry.Get(client.ID)
		if !ok {
			fail("Please join the game first")
			return
		}
		var payload createRoomMsg
		if err := decode(msg.Data, &payload); err != nil {
			fail(err.Error())
			return
		}
		if err := cs.coinflip.CreateRoom(sess, payload.BetAmount, payload.Choice); err != nil {
			fail(err.Error())
		}

	case "joinRoom":
		sess, ok := cs.registry.Get(client.ID)
		if !ok {
			fail("Please join the game first")
			return
		}
		var payload roomRefMsg
		if err := decode(msg.Data, &payload); err != nil {
			fail(err.Error())
			return
		}
		if err := cs.coinflip.JoinRoom(sess, payload.RoomID); err != nil {
			fail(err.Error())
		}

	case "confirmParticipation":
		sess, ok := cs.registry.Get(client.ID)
		if !ok {
			fail("Please join the game first")
			return
		}
		var payload roomRefMsg
		if err := decode(msg.Data, &payload); err != nil {
			fail(err.Error())
			return
		}
		if err := cs.coinflip.Confirm(sess, payload.RoomID); err != nil {
			fail(err.Error())
		}

	case "leaveRoom":
		sess, ok := cs.registry.Get(client.ID)
		if !ok {
			return
		}
		cs.coinflip.Leave(sess)

	case "joinCrash":
		client.Send("crashState", cs.crash.State())

	case "placeCrashBet":
		sess, ok := cs.registry.Get(client.ID)
		if !ok {
			client.Send("crashBetPlaced", gin.H{"success": false, "error": "Not logged in"})
			return
		}
		var payload placeCrashBetMsg
		if err := decode(msg.Data, &payload); err != nil {
			client.Send("crashBetPlaced", gin.H{"success": false, "error": "Invalid bet amount"})
			return
		}
		cs.crash.PlaceBet(sess, payload.Amount, payload.AutoCashout)

	case "crashCashOut":
		cs.crash.CashOut(client.ID)

	default:
		fail("Unknown message type")
	}
}

func (cs *Casino) joinCasino(client *Client, username string) {
	if username == "" {
		client.Send("error", gin.H{"message": "Please provide a valid username"})
		return
	}

	acc, ok := cs.accounts.Lookup(username)
	if !ok {
		client.Send("error", gin.H{"message": "User not found. Please register first."})
		return
	}

	sess := cs.registry.Join(client.ID, acc.Username, acc.Credits)

	client.Send("playerData", playerPayload(cs.ledger, sess))
	client.Send("rouletteState", cs.roulette.State())
	cs.coinflip.SendRooms(client.ID)
}

// disconnect is a defined transition, not an error: persist the balance,
// apply the coinflip departure matrix, forfeit any roulette bet, drop the
// session.
func (cs *Casino) disconnect(client *Client) {
	cs.hub.Remove(client.ID)
	client.conn.Close()

	if sess, ok := cs.registry.Get(client.ID); ok {
		cs.accounts.SaveBalance(sess.Username, cs.ledger.Balance(sess))
		cs.coinflip.HandleDisconnect(sess)
		cs.roulette.DropBet(client.ID)
		cs.registry.Remove(client.ID)
	}

	logger.Info("Player disconnected: %s", client.ID)
}

func decode(data json.RawMessage, payload interface{}) error {
	if len(data) > 0 {
		if err := json.Unmarshal(data, payload); err != nil {
			return err
		}
	}
	return validate.Struct(payload)
}
