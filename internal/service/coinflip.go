package service

import (
	"errors"
	"fmt"
	"math/rand"
	"sync"

	"github.com/gin-gonic/gin"
)

const (
	RoomWaiting  = "waiting"
	RoomFlipping = "flipping"
	RoomFinished = "finished"
)

// CoinflipRoom is one two-party match. Rooms never share state with each
// other; every mutation goes through the service lock addressing one roomId.
type CoinflipRoom struct {
	ID            string
	Creator       *Session
	BetAmount     int64
	CreatorChoice string
	Members       []*Session
	Confirmed     bool
	Phase         string
	CoinResult    string
}

func (r *CoinflipRoom) member(connID string) *Session {
	for _, m := range r.Members {
		if m.ConnID == connID {
			return m
		}
	}
	return nil
}

func (r *CoinflipRoom) joiner() *Session {
	for _, m := range r.Members {
		if m.ConnID != r.Creator.ConnID {
			return m
		}
	}
	return nil
}

func oppositeChoice(choice string) string {
	if choice == "Heads" {
		return "Tails"
	}
	return "Heads"
}

// CoinflipService owns every coinflip room and the room id sequence.
type CoinflipService struct {
	hub     *Hub
	ledger  *CreditLedger
	records BetRecorder
	flip    func() string

	mu      sync.Mutex
	rooms   map[string]*CoinflipRoom
	counter int
}

func NewCoinflipService(hub *Hub, ledger *CreditLedger, records BetRecorder) *CoinflipService {
	if records == nil {
		records = nopRecorder{}
	}
	return &CoinflipService{
		hub:     hub,
		ledger:  ledger,
		records: records,
		flip: func() string {
			if rand.Intn(2) == 0 {
				return "Heads"
			}
			return "Tails"
		},
		rooms:   make(map[string]*CoinflipRoom),
		counter: 1,
	}
}

// CreateRoom debits the creator's stake immediately and lists the room for
// discovery. The stake is refundable only while the room is still waiting
// and unconfirmed.
func (s *CoinflipService) CreateRoom(sess *Session, betAmount int64, choice string) error {
	s.mu.Lock()
	if sess.RoomID != "" {
		s.mu.Unlock()
		return errors.New("Leave your current room first")
	}
	if betAmount <= 0 {
		s.mu.Unlock()
		return errors.New("Invalid bet amount")
	}
	if choice != "Heads" && choice != "Tails" {
		s.mu.Unlock()
		return errors.New("Invalid choice")
	}
	if err := s.ledger.Debit(sess, betAmount); err != nil {
		s.mu.Unlock()
		return errors.New("Insufficient credits")
	}

	roomID := fmt.Sprintf("room-%03d", s.counter)
	s.counter++

	s.rooms[roomID] = &CoinflipRoom{
		ID:            roomID,
		Creator:       sess,
		BetAmount:     betAmount,
		CreatorChoice: choice,
		Members:       []*Session{sess},
		Phase:         RoomWaiting,
	}
	sess.RoomID = roomID
	rooms := s.availableRoomsLocked()
	s.mu.Unlock()

	s.hub.SendTo(sess.ConnID, "roomCreated", gin.H{
		"roomId":    roomID,
		"betAmount": betAmount,
		"choice":    choice,
		"credits":   s.ledger.Balance(sess),
	})
	s.hub.SendTo(sess.ConnID, "gameState", gin.H{
		"state":   RoomWaiting,
		"message": "Room created! Waiting for opponent to join...",
	})
	s.hub.Broadcast("availableRooms", rooms)
	return nil
}

// JoinRoom adds a second member. No money moves and the phase does not change
// until the joiner confirms.
func (s *CoinflipService) JoinRoom(sess *Session, roomID string) error {
	s.mu.Lock()
	if sess.RoomID != "" {
		s.mu.Unlock()
		return errors.New("Leave your current room first")
	}
	room, ok := s.rooms[roomID]
	if !ok {
		s.mu.Unlock()
		return errors.New("Room not found")
	}
	if len(room.Members) >= 2 {
		s.mu.Unlock()
		return errors.New("Room is full")
	}
	if room.Phase != RoomWaiting {
		s.mu.Unlock()
		return errors.New("Room is not available")
	}

	room.Members = append(room.Members, sess)
	sess.RoomID = roomID
	creator := room.Creator
	betAmount := room.BetAmount
	creatorChoice := room.CreatorChoice
	members := append([]*Session(nil), room.Members...)
	rooms := s.availableRoomsLocked()
	s.mu.Unlock()

	update := gin.H{
		"player1":       gin.H{"name": members[0].Username},
		"player2":       gin.H{"name": members[1].Username},
		"betAmount":     betAmount,
		"creatorChoice": creatorChoice,
	}
	for _, m := range members {
		s.hub.SendTo(m.ConnID, "playersUpdate", update)
	}

	s.hub.SendTo(sess.ConnID, "joinedRoom", gin.H{
		"roomId":        roomID,
		"betAmount":     betAmount,
		"creatorChoice": creatorChoice,
		"creatorName":   creator.Username,
	})
	s.hub.SendTo(creator.ConnID, "opponentJoined", gin.H{
		"opponentName": sess.Username,
	})
	s.hub.Broadcast("availableRooms", rooms)
	return nil
}

// Confirm is sent by the joining player and triggers the flip. The joiner's
// matching stake is debited here; a failed debit leaves the room untouched.
func (s *CoinflipService) Confirm(sess *Session, roomID string) error {
	s.mu.Lock()
	room, ok := s.rooms[roomID]
	if !ok || room.member(sess.ConnID) == nil {
		s.mu.Unlock()
		return errors.New("You are not in this room")
	}
	if room.Phase != RoomWaiting {
		s.mu.Unlock()
		return errors.New("Game already started")
	}
	if sess.ConnID == room.Creator.ConnID {
		s.mu.Unlock()
		return errors.New("Only the joining player can confirm")
	}
	if len(room.Members) < 2 {
		s.mu.Unlock()
		return errors.New("Waiting for an opponent")
	}

	// Balance may have been spent elsewhere since joining.
	if err := s.ledger.Debit(sess, room.BetAmount); err != nil {
		s.mu.Unlock()
		return errors.New("Insufficient credits")
	}

	room.Confirmed = true
	room.Phase = RoomFlipping

	coinResult := s.flip()
	room.CoinResult = coinResult

	creator := room.Creator
	joiner := room.joiner()
	joinerChoice := oppositeChoice(room.CreatorChoice)
	winnings := room.BetAmount * 2

	winner, loser := joiner, creator
	if room.CreatorChoice == coinResult {
		winner, loser = creator, joiner
	}

	s.ledger.Credit(winner, winnings)
	s.records.Record(winner.Username, "coinflip",
		fmt.Sprintf("Won: %s", coinResult), room.BetAmount, winnings, 2.0)
	s.records.Record(loser.Username, "coinflip",
		fmt.Sprintf("Lost: %s", coinResult), room.BetAmount, 0, 0)

	results := map[string]gin.H{
		creator.ConnID: {
			"won":        winner == creator,
			"winnings":   int64(0),
			"newCredits": s.ledger.Balance(creator),
			"choice":     room.CreatorChoice,
		},
		joiner.ConnID: {
			"won":        winner == joiner,
			"winnings":   int64(0),
			"newCredits": s.ledger.Balance(joiner),
			"choice":     joinerChoice,
		},
	}
	results[winner.ConnID]["winnings"] = winnings

	payload := gin.H{
		"coinResult":    coinResult,
		"results":       results,
		"betAmount":     room.BetAmount,
		"creatorChoice": room.CreatorChoice,
		"choices": map[string]string{
			creator.ConnID: room.CreatorChoice,
			joiner.ConnID:  joinerChoice,
		},
	}

	// The room stays around in finished state so a late read does not reset
	// anything, but it is no longer discoverable.
	room.Phase = RoomFinished
	members := append([]*Session(nil), room.Members...)
	s.mu.Unlock()

	for _, m := range members {
		s.hub.SendTo(m.ConnID, "coinFlipResult", payload)
	}
	return nil
}

// Leave handles an explicit leaveRoom message.
func (s *CoinflipService) Leave(sess *Session) {
	s.departed(sess)
	s.hub.SendTo(sess.ConnID, "leftRoom", gin.H{})
	s.SendRooms(sess.ConnID)
}

// HandleDisconnect applies the same departure matrix without the leaver acks.
func (s *CoinflipService) HandleDisconnect(sess *Session) {
	s.departed(sess)
}

// departed applies the leave/disconnect matrix:
//
//	creator, waiting unconfirmed  -> refund stake once, destroy room
//	creator, confirmed or later   -> destroy room, no refund
//	joiner, before finished       -> reset room to waiting, notify creator
//	joiner, finished              -> no state change
//	room empty                    -> destroy room
func (s *CoinflipService) departed(sess *Session) {
	s.mu.Lock()
	roomID := sess.RoomID
	room, ok := s.rooms[roomID]
	if !ok {
		sess.RoomID = ""
		s.mu.Unlock()
		return
	}

	kept := room.Members[:0]
	for _, m := range room.Members {
		if m.ConnID != sess.ConnID {
			kept = append(kept, m)
		}
	}
	room.Members = kept
	sess.RoomID = ""

	var refund int64
	var notifyCreator bool

	if sess.ConnID == room.Creator.ConnID {
		if !room.Confirmed {
			refund = room.BetAmount
		}
		for _, m := range room.Members {
			m.RoomID = ""
		}
		delete(s.rooms, roomID)
	} else {
		if room.Phase != RoomFinished {
			room.Phase = RoomWaiting
			room.Confirmed = false
			notifyCreator = true
		}
		if len(room.Members) == 0 {
			delete(s.rooms, roomID)
			notifyCreator = false
		}
	}

	creator := room.Creator
	rooms := s.availableRoomsLocked()
	s.mu.Unlock()

	if refund > 0 {
		s.ledger.Credit(sess, refund)
		s.hub.SendTo(sess.ConnID, "playerData", playerPayload(s.ledger, sess))
	}
	if notifyCreator {
		s.hub.SendTo(creator.ConnID, "opponentLeft", gin.H{})
	}
	s.hub.Broadcast("availableRooms", rooms)
}

// Room returns the room a connection is member of, for tests and late reads.
func (s *CoinflipService) Room(roomID string) (*CoinflipRoom, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	room, ok := s.rooms[roomID]
	return room, ok
}

// SendRooms pushes the discovery listing to a single connection.
func (s *CoinflipService) SendRooms(connID string) {
	s.mu.Lock()
	rooms := s.availableRoomsLocked()
	s.mu.Unlock()
	s.hub.SendTo(connID, "availableRooms", rooms)
}

// Discovery lists only rooms a new player could actually join: still waiting,
// one member, not mid-negotiation.
func (s *CoinflipService) availableRoomsLocked() []gin.H {
	rooms := make([]gin.H, 0, len(s.rooms))
	for roomID, room := range s.rooms {
		if room.Phase != RoomWaiting || len(room.Members) != 1 || room.Confirmed {
			continue
		}
		rooms = append(rooms, gin.H{
			"roomId":        roomID,
			"playerCount":   len(room.Members),
			"creatorName":   room.Creator.Username,
			"betAmount":     room.BetAmount,
			"creatorChoice": room.CreatorChoice,
		})
	}
	return rooms
}
