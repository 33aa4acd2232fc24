package gamification

import "sort"

// PointKind is the closed set of point-earning events.
type PointKind string

const (
	KindDailyLogin        PointKind = "DAILY_LOGIN"
	KindStreakBonus7      PointKind = "STREAK_BONUS_7"
	KindStreakBonus30     PointKind = "STREAK_BONUS_30"
	KindStreakBonus100    PointKind = "STREAK_BONUS_100"
	KindPostCreated       PointKind = "POST_CREATED"
	KindCommentCreated    PointKind = "COMMENT_CREATED"
	KindUpvoteReceived    PointKind = "UPVOTE_RECEIVED"
	KindSessionAttended   PointKind = "SESSION_ATTENDED"
	KindMoodLogged        PointKind = "MOOD_LOGGED"
	KindJournalWritten    PointKind = "JOURNAL_WRITTEN"
	KindExerciseCompleted PointKind = "EXERCISE_COMPLETED"
	// KindBadgeUnlocked carries the badge's own reward and is only written by the engine.
	KindBadgeUnlocked PointKind = "BADGE_UNLOCKED"
)

type kindRule struct {
	amount   int
	label    string
	followUp BadgeCategory
}

var kindRules = map[PointKind]kindRule{
	KindDailyLogin:        {amount: 10, label: "Check-in diario", followUp: CategorySpecial},
	KindStreakBonus7:      {amount: 50, label: "Bonus por racha de 7 días", followUp: CategorySpecial},
	KindStreakBonus30:     {amount: 200, label: "Bonus por racha de 30 días", followUp: CategorySpecial},
	KindStreakBonus100:    {amount: 500, label: "Bonus por racha de 100 días", followUp: CategorySpecial},
	KindPostCreated:       {amount: 20, label: "Publicación creada", followUp: CategoryCommunity},
	KindCommentCreated:    {amount: 5, label: "Comentario creado", followUp: CategoryCommunity},
	KindUpvoteReceived:    {amount: 2, label: "Voto positivo recibido", followUp: CategorySocial},
	KindSessionAttended:   {amount: 50, label: "Sesión completada", followUp: CategorySession},
	KindMoodLogged:        {amount: 5, label: "Estado de ánimo registrado", followUp: CategoryWellness},
	KindJournalWritten:    {amount: 10, label: "Entrada de diario", followUp: CategoryWellness},
	KindExerciseCompleted: {amount: 15, label: "Ejercicio completado", followUp: CategoryWellness},
	KindBadgeUnlocked:     {amount: 0, label: "Insignia desbloqueada"},
}

// streak lengths that earn a one-off bonus on the day they are reached
var streakBonuses = map[int]PointKind{
	7:   KindStreakBonus7,
	30:  KindStreakBonus30,
	100: KindStreakBonus100,
}

// Valid reports whether k belongs to the fixed set of kinds.
func (k PointKind) Valid() bool {
	_, ok := kindRules[k]
	return ok
}

// Requestable reports whether callers may award k directly.
func (k PointKind) Requestable() bool {
	return k.Valid() && k != KindBadgeUnlocked
}

// Amount is the fixed reward for k; zero for BADGE_UNLOCKED, whose amount comes from the badge.
func (k PointKind) Amount() int {
	return kindRules[k].amount
}

// Label is the default transaction description.
func (k PointKind) Label() string {
	return kindRules[k].label
}

// FollowUp is the badge category checked after k is credited, if any.
func (k PointKind) FollowUp() BadgeCategory {
	return kindRules[k].followUp
}

// Kinds lists every kind, sorted.
func Kinds() []PointKind {
	out := make([]PointKind, 0, len(kindRules))
	for k := range kindRules {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// StreakBonusFor returns the bonus kind earned when a streak reaches exactly days.
func StreakBonusFor(days int) (PointKind, bool) {
	k, ok := streakBonuses[days]
	return k, ok
}
