package registry

import (
	"time"

	"gorm.io/gorm"
)

// OrderState is the per-digest lifecycle row. Rows are created lazily
// (absence means neither cancelled nor finalized) and never deleted, so
// a consumed digest can never be replayed.
type OrderState struct {
	gorm.Model `json:"-"`
	Digest     string    `gorm:"uniqueIndex" json:"digest"`
	Maker      string    `json:"maker"`
	Cancelled  bool      `json:"cancelled"`
	Finalized  bool      `json:"finalized"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Terminal reports whether the order has reached a terminal state.
func (s *OrderState) Terminal() bool {
	return s.Cancelled || s.Finalized
}
