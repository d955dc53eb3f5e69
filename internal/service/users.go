package service

import (
	"strconv"
	"time"

	"CasinoApi/internal/middleware"
	"CasinoApi/internal/models"
	"CasinoApi/pkg/logger"
	"CasinoApi/pkg/store"

	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/bcrypt"
)

const accessExpirationHours = 10

// UserService serves the HTTP collaborator endpoints: registration and login
// hand out the authoritative starting balance; the realtime core trusts the
// identity given to joinCasino afterwards.
type UserService struct {
	accounts      *store.AccountStore
	history       *models.BetHistoryStore
	jwtKey        string
	initialCredit int64
}

func NewUserService(accounts *store.AccountStore, history *models.BetHistoryStore, jwtKey string, initialCredit int64) *UserService {
	return &UserService{
		accounts:      accounts,
		history:       history,
		jwtKey:        jwtKey,
		initialCredit: initialCredit,
	}
}

type registerInput struct {
	Username string `json:"username" binding:"required,min=3,max=20"`
	Password string `json:"password" binding:"required,min=6"`
}

type loginInput struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// Register handles POST /api/register.
func (s *UserService) Register(c *gin.Context) {
	var input registerInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(400, gin.H{"error": "Username must be between 3 and 20 characters and password at least 6"})
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(input.Password), bcrypt.DefaultCost)
	if err != nil {
		logger.Error("%v", err)
		c.Status(500)
		return
	}

	if err := s.accounts.Create(input.Username, string(hash), s.initialCredit); err != nil {
		if err == store.ErrAccountExists {
			c.JSON(400, gin.H{"error": "Username already exists"})
			return
		}
		logger.Error("%v", err)
		c.Status(500)
		return
	}

	c.JSON(200, gin.H{
		"success": true,
		"message": "Account created successfully",
		"credits": s.initialCredit,
	})
}

// Login handles POST /api/login and returns an access token alongside the
// authoritative balance.
func (s *UserService) Login(c *gin.Context) {
	var input loginInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(400, gin.H{"error": "Username and password are required"})
		return
	}

	acc, ok := s.accounts.Lookup(input.Username)
	if !ok {
		c.JSON(401, gin.H{"error": "Invalid username or password"})
		return
	}

	if err := bcrypt.CompareHashAndPassword([]byte(acc.PasswordHash), []byte(input.Password)); err != nil {
		logger.Warn("Login attempt failed: invalid password for user '%s'", input.Username)
		c.JSON(401, gin.H{"error": "Invalid username or password"})
		return
	}

	s.accounts.TouchLastPlayed(acc.Username)

	token, err := middleware.TokenNew(s.jwtKey, acc.Username,
		time.Now().Add(accessExpirationHours*time.Hour))
	if err != nil {
		logger.Error("%v", err)
		c.Status(500)
		return
	}

	c.JSON(200, gin.H{
		"success":      true,
		"username":     acc.Username,
		"credits":      acc.Credits,
		"access_token": token,
	})
}

// BetHistory handles GET /api/bets/history for the authenticated player.
func (s *UserService) BetHistory(c *gin.Context) {
	username, err := middleware.GetUsernameFromGinContext(c)
	if err != nil {
		logger.Error("%v", err)
		c.Status(500)
		return
	}

	limit := 50
	if v, ok := c.GetQuery("limit"); ok {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}

	records, err := s.history.Recent(username, limit)
	if err != nil {
		logger.Error("%v", err)
		c.Status(500)
		return
	}

	c.JSON(200, gin.H{"history": records})
}

// Leaderboard handles GET /api/leaderboard.
func (s *UserService) Leaderboard(c *gin.Context) {
	top := s.accounts.Leaderboard(20)
	entries := make([]gin.H, 0, len(top))
	for _, acc := range top {
		entries = append(entries, gin.H{
			"username": acc.Username,
			"credits":  acc.Credits,
		})
	}
	c.JSON(200, gin.H{"leaderboard": entries})
}
