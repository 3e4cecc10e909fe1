package server

import (
	"context"
	cryptorand "crypto/rand"
	"io"
	"math/big"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/decred/slog"

	"ridebus/pkg/game"
)

// DefaultGracePeriod is how long a room with no connected players survives
// before the sweeper deletes it.
const DefaultGracePeriod = 60 * time.Second

const roomCodeLength = 6

// codeAlphabet avoids the easily confused characters 0, O, 1 and I.
const codeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

// RegistryConfig holds configuration for a registry.
type RegistryConfig struct {
	Log slog.Logger

	// RoomLog is handed to every created room. Defaults to Log.
	RoomLog slog.Logger

	// GracePeriod overrides DefaultGracePeriod when positive.
	GracePeriod time.Duration

	// Seed makes deck shuffles and dealer selection deterministic when
	// non-zero. Each room gets its own generator derived from it.
	Seed int64

	FailStreakLimit int
	RotateEveryCard bool
}

// Registry owns the live rooms: creation with unique codes, lookup, joining
// and garbage collection of abandoned rooms.
type Registry struct {
	log slog.Logger
	cfg RegistryConfig

	mu      sync.RWMutex
	rooms   map[string]*game.Room
	created int64

	events chan<- game.Event
}

// NewRegistry creates an empty room registry.
func NewRegistry(cfg RegistryConfig) *Registry {
	if cfg.Log == nil {
		cfg.Log = slog.NewBackend(io.Discard).Logger("RGST")
	}
	if cfg.RoomLog == nil {
		cfg.RoomLog = cfg.Log
	}
	if cfg.GracePeriod <= 0 {
		cfg.GracePeriod = DefaultGracePeriod
	}

	return &Registry{
		log:   cfg.Log,
		cfg:   cfg,
		rooms: make(map[string]*game.Room),
	}
}

// SetEventChannel attaches the channel future rooms publish their events to.
func (g *Registry) SetEventChannel(events chan<- game.Event) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.events = events
}

// randomRoomCode returns a crypto-random code from the unambiguous alphabet.
func randomRoomCode() (string, error) {
	var sb strings.Builder
	max := big.NewInt(int64(len(codeAlphabet)))
	for i := 0; i < roomCodeLength; i++ {
		n, err := cryptorand.Int(cryptorand.Reader, max)
		if err != nil {
			return "", err
		}
		sb.WriteByte(codeAlphabet[n.Int64()])
	}
	return sb.String(), nil
}

// CreateRoom creates a room with a fresh unique code and seats the creator as
// owner.
func (g *Registry) CreateRoom(ownerID, ownerName string) (*game.Room, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	var code string
	for {
		c, err := randomRoomCode()
		if err != nil {
			return nil, err
		}
		if _, taken := g.rooms[c]; !taken {
			code = c
			break
		}
	}

	g.created++
	seed := time.Now().UnixNano()
	if g.cfg.Seed != 0 {
		seed = g.cfg.Seed + g.created
	}

	room := game.NewRoom(game.RoomConfig{
		Code:            code,
		Log:             g.cfg.RoomLog,
		Rng:             rand.New(rand.NewSource(seed)),
		FailStreakLimit: g.cfg.FailStreakLimit,
		RotateEveryCard: g.cfg.RotateEveryCard,
	}, ownerID, ownerName)
	if g.events != nil {
		room.SetEventChannel(g.events)
	}

	g.rooms[code] = room
	g.log.Infof("created room %s for %s, %d rooms live", code, ownerID, len(g.rooms))
	return room, nil
}

// LookupRoom finds a room by code. Codes are matched case-insensitively so
// hand-typed lowercase works.
func (g *Registry) LookupRoom(code string) (*game.Room, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	room, ok := g.rooms[strings.ToUpper(strings.TrimSpace(code))]
	if !ok {
		return nil, game.ErrRoomNotFound
	}
	return room, nil
}

// JoinRoom seats a player in an existing room.
func (g *Registry) JoinRoom(code, playerID, name string) (*game.Room, error) {
	room, err := g.LookupRoom(code)
	if err != nil {
		return nil, err
	}
	if err := room.AddPlayer(playerID, name); err != nil {
		return nil, err
	}
	return room, nil
}

// RoomCount returns the number of live rooms.
func (g *Registry) RoomCount() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.rooms)
}

// Sweep deletes rooms that have been empty for at least the grace period.
// It returns how many rooms were removed.
func (g *Registry) Sweep(now time.Time) int {
	g.mu.Lock()
	defer g.mu.Unlock()

	removed := 0
	for code, room := range g.rooms {
		since, empty := room.EmptySince()
		if !empty || now.Sub(since) < g.cfg.GracePeriod {
			continue
		}
		delete(g.rooms, code)
		removed++
		g.log.Infof("swept empty room %s, %d rooms live", code, len(g.rooms))
	}
	return removed
}

// Run sweeps abandoned rooms periodically until the context is cancelled.
// A non-positive interval defaults to half the grace period.
func (g *Registry) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = g.cfg.GracePeriod / 2
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			g.Sweep(time.Now())
		}
	}
}
