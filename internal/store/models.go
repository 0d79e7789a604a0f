package store

import "time"

// Room statuses.
const (
	RoomWaiting = "waiting"
	RoomActive  = "active"
	RoomEnded   = "ended"
)

// Participant roles.
const (
	RoleHost  = "host"
	RoleGuest = "guest"
)

// Slot kinds.
const (
	SlotHostCam  = "host_cam"
	SlotGuestCam = "guest_cam"
)

// Transaction kinds.
const (
	TxEntryFee       = "entry_fee"
	TxMeteredBilling = "metered_billing"
	TxRevealPurchase = "reveal_purchase"
)

// Leave reasons recorded on closed participant rows.
const (
	LeaveVoluntary      = "voluntary"
	LeaveBillingFailure = "billing_failure"
	LeaveRoomEnded      = "room_ended"
)

type Account struct {
	UserID      string    `json:"user_id"`
	SpendableCC int64     `json:"spendable_cc"`
	PendingCC   int64     `json:"pending_cc"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type Transaction struct {
	ID         string    `json:"id"`
	SenderID   string    `json:"sender_id"`
	ReceiverID string    `json:"receiver_id,omitempty"`
	AmountCC   int64     `json:"amount_cc"`
	Kind       string    `json:"kind"`
	RoomID     string    `json:"room_id"`
	DedupKey   string    `json:"-"`
	CreatedAt  time.Time `json:"created_at"`
}

type Room struct {
	ID            string    `json:"id"`
	HostID        string    `json:"host_id"`
	Status        string    `json:"status"`
	BasePriceCC   int64     `json:"base_price_cc"`
	RevealKind    *string   `json:"reveal_kind,omitempty"`
	RevealPayload *string   `json:"reveal_payload,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

type Participant struct {
	ID          string     `json:"id"`
	RoomID      string     `json:"room_id"`
	UserID      string     `json:"user_id"`
	Role        string     `json:"role"`
	JoinedAt    time.Time  `json:"joined_at"`
	LeftAt      *time.Time `json:"left_at,omitempty"`
	LeaveReason string     `json:"leave_reason,omitempty"`
}

type Slot struct {
	ID             string     `json:"id"`
	RoomID         string     `json:"room_id"`
	Kind           string     `json:"kind"`
	Index          int        `json:"index"`
	OccupantUserID *string    `json:"occupant_user_id,omitempty"`
	OccupiedAt     *time.Time `json:"occupied_at,omitempty"`
}

// TransferParams describes one atomic wallet movement. A transfer debits the
// sender's spendable balance and, when ReceiverID is set, credits the
// receiver's pending balance. DedupKey makes replays of the same logical
// charge a no-op.
type TransferParams struct {
	SenderID   string
	ReceiverID string
	AmountCC   int64
	Kind       string
	RoomID     string
	DedupKey   string
}

type TransferResult struct {
	TxID              string
	Applied           bool
	SenderSpendableCC int64
	ReceiverPendingCC int64
}

type TransactionFilter struct {
	UserID string
	RoomID string
	Kind   string
}
