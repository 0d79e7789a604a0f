package store

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"
)

// Mem is the in-memory binding of the persistence collaborator. It mirrors
// the Postgres binding's conditional-update semantics under a single mutex
// and backs unit tests and the -dev mode of the server binary.
type Mem struct {
	mu           sync.Mutex
	accounts     map[string]*Account
	transactions []Transaction
	dedup        map[string]string
	rooms        map[string]*Room
	participants []*Participant
	slots        map[string][]*Slot
}

func NewMem() *Mem {
	return &Mem{
		accounts: map[string]*Account{},
		dedup:    map[string]string{},
		rooms:    map[string]*Room{},
		slots:    map[string][]*Slot{},
	}
}

func (s *Mem) Ping(ctx context.Context) error { return nil }

func (s *Mem) Transfer(ctx context.Context, p TransferParams) (TransferResult, error) {
	var res TransferResult
	if p.AmountCC <= 0 {
		return res, errors.New("amount must be positive")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if txID, ok := s.dedup[p.DedupKey]; ok {
		return TransferResult{TxID: txID, Applied: false}, nil
	}
	sender, ok := s.accounts[p.SenderID]
	if !ok {
		return res, ErrNotFound
	}
	var receiver *Account
	if p.ReceiverID != "" {
		receiver, ok = s.accounts[p.ReceiverID]
		if !ok {
			return res, ErrNotFound
		}
	}
	if sender.SpendableCC < p.AmountCC {
		return res, ErrInsufficientBalance
	}
	now := time.Now().UTC()
	sender.SpendableCC -= p.AmountCC
	sender.UpdatedAt = now
	res.SenderSpendableCC = sender.SpendableCC
	if receiver != nil {
		receiver.PendingCC += p.AmountCC
		receiver.UpdatedAt = now
		res.ReceiverPendingCC = receiver.PendingCC
	}
	txID := NewID()
	s.transactions = append(s.transactions, Transaction{
		ID:         txID,
		SenderID:   p.SenderID,
		ReceiverID: p.ReceiverID,
		AmountCC:   p.AmountCC,
		Kind:       p.Kind,
		RoomID:     p.RoomID,
		DedupKey:   p.DedupKey,
		CreatedAt:  now,
	})
	s.dedup[p.DedupKey] = txID
	res.TxID = txID
	res.Applied = true
	return res, nil
}

func (s *Mem) GetAccount(ctx context.Context, userID string) (Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[userID]
	if !ok {
		return Account{}, ErrNotFound
	}
	return *a, nil
}

func (s *Mem) EnsureAccount(ctx context.Context, userID string, initialCC int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.accounts[userID]; !ok {
		s.accounts[userID] = &Account{UserID: userID, SpendableCC: initialCC, UpdatedAt: time.Now().UTC()}
	}
	return nil
}

func (s *Mem) Topup(ctx context.Context, userID string, amountCC int64) (int64, error) {
	if amountCC <= 0 {
		return 0, errors.New("amount must be positive")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[userID]
	if !ok {
		return 0, ErrNotFound
	}
	now := time.Now().UTC()
	a.SpendableCC += amountCC
	a.UpdatedAt = now
	s.transactions = append(s.transactions, Transaction{
		ID: NewID(), SenderID: "platform", ReceiverID: userID,
		AmountCC: amountCC, Kind: "admin_topup", DedupKey: NewID(), CreatedAt: now,
	})
	return a.SpendableCC, nil
}

func (s *Mem) Settle(ctx context.Context, userID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[userID]
	if !ok {
		return 0, ErrNotFound
	}
	moved := a.PendingCC
	if moved == 0 {
		return 0, nil
	}
	now := time.Now().UTC()
	a.SpendableCC += moved
	a.PendingCC = 0
	a.UpdatedAt = now
	s.transactions = append(s.transactions, Transaction{
		ID: NewID(), SenderID: userID,
		AmountCC: moved, Kind: "settlement", DedupKey: NewID(), CreatedAt: now,
	})
	return moved, nil
}

func (s *Mem) ListTransactions(ctx context.Context, f TransactionFilter, limit, offset int) ([]Transaction, error) {
	if limit <= 0 {
		limit = 50
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Transaction
	for i := len(s.transactions) - 1; i >= 0; i-- {
		t := s.transactions[i]
		if f.UserID != "" && t.SenderID != f.UserID && t.ReceiverID != f.UserID {
			continue
		}
		if f.RoomID != "" && t.RoomID != f.RoomID {
			continue
		}
		if f.Kind != "" && t.Kind != f.Kind {
			continue
		}
		out = append(out, t)
	}
	if offset >= len(out) {
		return nil, nil
	}
	out = out[offset:]
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Mem) CreateRoom(ctx context.Context, hostID string, basePriceCC int64) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := NewID()
	now := time.Now().UTC()
	s.rooms[id] = &Room{
		ID: id, HostID: hostID, Status: RoomWaiting, BasePriceCC: basePriceCC,
		CreatedAt: now, UpdatedAt: now,
	}
	return id, nil
}

func (s *Mem) GetRoom(ctx context.Context, roomID string) (Room, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rooms[roomID]
	if !ok {
		return Room{}, ErrNotFound
	}
	return *r, nil
}

func (s *Mem) ActivateRoom(ctx context.Context, roomID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rooms[roomID]
	if !ok || r.Status != RoomWaiting {
		return false, nil
	}
	r.Status = RoomActive
	r.UpdatedAt = time.Now().UTC()
	return true, nil
}

func (s *Mem) EndRoom(ctx context.Context, roomID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rooms[roomID]
	if !ok || r.Status == RoomEnded {
		return false, nil
	}
	r.Status = RoomEnded
	r.UpdatedAt = time.Now().UTC()
	return true, nil
}

func (s *Mem) SetReveal(ctx context.Context, roomID, kind, payload string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rooms[roomID]
	if !ok || r.Status != RoomActive || r.RevealKind != nil {
		return false, nil
	}
	k, p := kind, payload
	r.RevealKind = &k
	r.RevealPayload = &p
	r.UpdatedAt = time.Now().UTC()
	return true, nil
}

func (s *Mem) ClearReveal(ctx context.Context, roomID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r, ok := s.rooms[roomID]; ok {
		r.RevealKind = nil
		r.RevealPayload = nil
		r.UpdatedAt = time.Now().UTC()
	}
	return nil
}

func (s *Mem) OpenParticipant(ctx context.Context, p Participant) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ex := range s.participants {
		if ex.RoomID == p.RoomID && ex.UserID == p.UserID && ex.LeftAt == nil {
			return false, nil
		}
	}
	if p.ID == "" {
		p.ID = NewID()
	}
	if p.JoinedAt.IsZero() {
		p.JoinedAt = time.Now().UTC()
	}
	cp := p
	s.participants = append(s.participants, &cp)
	return true, nil
}

func (s *Mem) GetOpenParticipant(ctx context.Context, roomID, userID string) (Participant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.participants {
		if p.RoomID == roomID && p.UserID == userID && p.LeftAt == nil {
			return *p, nil
		}
	}
	return Participant{}, ErrNotFound
}

func (s *Mem) CloseParticipant(ctx context.Context, roomID, userID, reason string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.participants {
		if p.RoomID == roomID && p.UserID == userID && p.LeftAt == nil {
			now := time.Now().UTC()
			p.LeftAt = &now
			p.LeaveReason = reason
			return true, nil
		}
	}
	return false, nil
}

func (s *Mem) ListOpenParticipants(ctx context.Context, roomID string) ([]Participant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Participant
	for _, p := range s.participants {
		if p.RoomID == roomID && p.LeftAt == nil {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (s *Mem) ListAllOpenParticipants(ctx context.Context) ([]Participant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Participant
	for _, p := range s.participants {
		if p.LeftAt != nil {
			continue
		}
		if r, ok := s.rooms[p.RoomID]; ok && r.Status == RoomEnded {
			continue
		}
		out = append(out, *p)
	}
	return out, nil
}

func (s *Mem) CreateSlots(ctx context.Context, roomID string, hostCams, guestCams int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := 0; i < hostCams; i++ {
		s.slots[roomID] = append(s.slots[roomID], &Slot{ID: NewID(), RoomID: roomID, Kind: SlotHostCam, Index: i})
	}
	for i := 0; i < guestCams; i++ {
		s.slots[roomID] = append(s.slots[roomID], &Slot{ID: NewID(), RoomID: roomID, Kind: SlotGuestCam, Index: i})
	}
	return nil
}

func (s *Mem) ListSlots(ctx context.Context, roomID string) ([]Slot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	slots := s.slots[roomID]
	out := make([]Slot, 0, len(slots))
	for _, sl := range slots {
		out = append(out, *sl)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Kind != out[j].Kind {
			return out[i].Kind < out[j].Kind
		}
		return out[i].Index < out[j].Index
	})
	return out, nil
}

func (s *Mem) SlotByOccupant(ctx context.Context, roomID, userID string) (*Slot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, sl := range s.slots[roomID] {
		if sl.OccupantUserID != nil && *sl.OccupantUserID == userID {
			cp := *sl
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (s *Mem) ClaimSlot(ctx context.Context, slotID, userID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, slots := range s.slots {
		for _, sl := range slots {
			if sl.ID != slotID {
				continue
			}
			if sl.OccupantUserID != nil {
				return false, nil
			}
			for _, other := range slots {
				if other.OccupantUserID != nil && *other.OccupantUserID == userID {
					return false, ErrOccupantHeld
				}
			}
			now := time.Now().UTC()
			u := userID
			sl.OccupantUserID = &u
			sl.OccupiedAt = &now
			return true, nil
		}
	}
	return false, ErrNotFound
}

func (s *Mem) ReleaseSlot(ctx context.Context, roomID, userID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, sl := range s.slots[roomID] {
		if sl.OccupantUserID != nil && *sl.OccupantUserID == userID {
			sl.OccupantUserID = nil
			sl.OccupiedAt = nil
			return true, nil
		}
	}
	return false, nil
}

func (s *Mem) ReleaseAllSlots(ctx context.Context, roomID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, sl := range s.slots[roomID] {
		if sl.OccupantUserID != nil {
			sl.OccupantUserID = nil
			sl.OccupiedAt = nil
			n++
		}
	}
	return n, nil
}
