package bot

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"

	solanago "github.com/gagliardetto/solana-go"

	"github.com/brojonat/solvent/service/db"
	"github.com/brojonat/solvent/service/rent"
	"github.com/brojonat/solvent/service/solana"
	"github.com/brojonat/solvent/service/watch"
)

const (
	testAddress  = "7xKXtg2CW87d97TXJSDpbD5jBkheTqA83TZRuJosgAsU"
	otherAddress = "9WzDXwBbmkg8ZTbNMqUxvQRAyrZzDsGYdLVL9zYtAWWM"
)

// memStore is an in-memory Store.
type memStore struct {
	mu        sync.Mutex
	tracked   []db.TrackedAddress
	prefs     map[string]db.UserPrefs
	snapshots map[string]watch.Snapshot
	failWith  error
}

func newMemStore() *memStore {
	return &memStore{
		prefs:     make(map[string]db.UserPrefs),
		snapshots: make(map[string]watch.Snapshot),
	}
}

func (s *memStore) TrackAddress(_ context.Context, ownerID, address, network string) (*db.TrackedAddress, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failWith != nil {
		return nil, s.failWith
	}
	for _, t := range s.tracked {
		if t.OwnerID == ownerID && t.Address == address {
			return nil, db.ErrAlreadyTracked
		}
	}
	t := db.TrackedAddress{OwnerID: ownerID, Address: address, Network: network, CreatedAt: time.Now()}
	s.tracked = append(s.tracked, t)
	return &t, nil
}

func (s *memStore) UntrackAddress(_ context.Context, ownerID, address string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, t := range s.tracked {
		if t.OwnerID == ownerID && t.Address == address {
			s.tracked = append(s.tracked[:i], s.tracked[i+1:]...)
			return nil
		}
	}
	return db.ErrNotFound
}

func (s *memStore) ListTrackedAddresses(_ context.Context, ownerID string) ([]db.TrackedAddress, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []db.TrackedAddress
	for _, t := range s.tracked {
		if ownerID == "" || t.OwnerID == ownerID {
			out = append(out, t)
		}
	}
	return out, nil
}

func (s *memStore) ListTrackedByAddress(_ context.Context, address string) ([]db.TrackedAddress, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failWith != nil {
		return nil, s.failWith
	}
	var out []db.TrackedAddress
	for _, t := range s.tracked {
		if t.Address == address {
			out = append(out, t)
		}
	}
	return out, nil
}

func (s *memStore) GetUserPrefs(_ context.Context, ownerID string) (db.UserPrefs, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok := s.prefs[ownerID]; ok {
		return p, nil
	}
	return db.DefaultUserPrefs(ownerID), nil
}

func (s *memStore) UpsertUserPrefs(_ context.Context, prefs db.UserPrefs) (db.UserPrefs, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	prefs.UpdatedAt = time.Now()
	s.prefs[prefs.OwnerID] = prefs
	return prefs, nil
}

func (s *memStore) GetLatestSnapshot(_ context.Context, address, network string) (*watch.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap, ok := s.snapshots[network+"/"+address]
	if !ok {
		return nil, db.ErrNotFound
	}
	return &snap, nil
}

func (s *memStore) putSnapshot(snap watch.Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshots[snap.Network+"/"+snap.Address] = snap
}

// stubAnalyzer returns a fixed report and records the last call.
type stubAnalyzer struct {
	mu      sync.Mutex
	err     error
	calls   int
	targets []solana.Target
}

func (a *stubAnalyzer) Analyze(_ context.Context, target solana.Target, feePayer solanago.PublicKey, limit int) (*rent.Report, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.calls++
	a.targets = append(a.targets, target)
	if a.err != nil {
		return nil, a.err
	}
	return &rent.Report{
		FeePayer: feePayer,
		Network:  target.Network,
		Stats: rent.RentStats{
			TotalAccounts:       3,
			TotalLocked:         3 * rent.TokenAccountRentEstimate,
			Reclaimable:         rent.TokenAccountRentEstimate,
			CloseableAccounts:   2,
			ReclaimableAccounts: 1,
		},
		ScannedAt: time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC),
	}, nil
}

// recordingMessenger captures direct messages.
type recordingMessenger struct {
	mu      sync.Mutex
	sent    map[string][]string
	failFor map[string]error
}

func newRecordingMessenger() *recordingMessenger {
	return &recordingMessenger{sent: make(map[string][]string), failFor: make(map[string]error)}
}

func (m *recordingMessenger) SendDM(userID, content string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failFor[userID]; err != nil {
		return err
	}
	m.sent[userID] = append(m.sent[userID], content)
	return nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
