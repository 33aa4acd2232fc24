package notify

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// EventType names what happened to the account.
type EventType string

const (
	EventLevelUp       EventType = "level_up"
	EventBadgeUnlocked EventType = "badge_unlocked"
	EventStreakBonus   EventType = "streak_bonus"
)

// Event is the payload handed to a Sink.
type Event struct {
	ID        string                 `json:"id"`
	Type      EventType              `json:"type"`
	AccountID string                 `json:"account_id"`
	Title     string                 `json:"title"`
	Body      string                 `json:"body"`
	Data      map[string]interface{} `json:"data,omitempty"`
	CreatedAt time.Time              `json:"created_at"`
}

func newEvent(typ EventType, accountID, title, body string, data map[string]interface{}) *Event {
	return &Event{
		ID:        uuid.NewString(),
		Type:      typ,
		AccountID: accountID,
		Title:     title,
		Body:      body,
		Data:      data,
		CreatedAt: time.Now().UTC(),
	}
}

func LevelUpEvent(accountID string, level int, levelName string) *Event {
	return newEvent(EventLevelUp, accountID,
		"¡Subiste de nivel!",
		fmt.Sprintf("Ahora eres nivel %d: %s", level, levelName),
		map[string]interface{}{"level": level, "level_name": levelName})
}

func BadgeUnlockedEvent(accountID, badgeName string) *Event {
	return newEvent(EventBadgeUnlocked, accountID,
		"¡Nueva insignia!",
		fmt.Sprintf("Desbloqueaste la insignia %s", badgeName),
		map[string]interface{}{"badge": badgeName})
}

func StreakBonusEvent(accountID string, days, bonus int) *Event {
	return newEvent(EventStreakBonus, accountID,
		fmt.Sprintf("¡Racha de %d días!", days),
		fmt.Sprintf("Ganaste %d puntos extra por tu constancia", bonus),
		map[string]interface{}{"days": days, "bonus": bonus})
}
