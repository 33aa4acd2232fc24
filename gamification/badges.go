package gamification

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"go.uber.org/zap"

	"github.com/mindhaven/mindhaven/models"
)

// MilestoneStats feeds the milestone predicate.
type MilestoneStats struct {
	TotalPoints int
	Level       int
}

type CommunityStats struct {
	Posts    int64
	Comments int64
}

type SessionStats struct {
	Sessions int64
}

type WellnessStats struct {
	Moods      int64
	MoodStreak int
	Journals   int64
	Exercises  int64
}

type SocialStats struct {
	Upvotes int64
}

type SpecialStats struct {
	LongestStreak int
	Posts         int64
	Sessions      int64
	Moods         int64
	Journals      int64
	Exercises     int64
}

// moodStreakWindow bounds how far back the mood streak query looks.
const moodStreakWindow = 60

func MilestoneBadges(s MilestoneStats) []string {
	var names []string
	names = appendIf(names, s.TotalPoints >= threshold(BadgeFirstStep), BadgeFirstStep)
	names = appendIf(names, s.TotalPoints >= threshold(BadgeHalfThousand), BadgeHalfThousand)
	names = appendIf(names, s.TotalPoints >= threshold(BadgeThousandPoints), BadgeThousandPoints)
	names = appendIf(names, s.Level >= threshold(BadgeLevelFive), BadgeLevelFive)
	names = appendIf(names, s.Level >= threshold(BadgeLevelTen), BadgeLevelTen)
	return names
}

func CommunityBadges(s CommunityStats) []string {
	var names []string
	names = appendIf(names, s.Posts >= int64(threshold(BadgeFirstPost)), BadgeFirstPost)
	names = appendIf(names, s.Posts >= int64(threshold(BadgeActiveVoice)), BadgeActiveVoice)
	names = appendIf(names, s.Comments >= int64(threshold(BadgeFirstComment)), BadgeFirstComment)
	names = appendIf(names, s.Comments >= int64(threshold(BadgeConversation)), BadgeConversation)
	return names
}

func SessionBadges(s SessionStats) []string {
	var names []string
	names = appendIf(names, s.Sessions >= int64(threshold(BadgeFirstSession)), BadgeFirstSession)
	names = appendIf(names, s.Sessions >= int64(threshold(BadgeCommitted)), BadgeCommitted)
	names = appendIf(names, s.Sessions >= int64(threshold(BadgeLongJourney)), BadgeLongJourney)
	return names
}

func WellnessBadges(s WellnessStats) []string {
	var names []string
	names = appendIf(names, s.Moods >= int64(threshold(BadgeFirstMood)), BadgeFirstMood)
	names = appendIf(names, s.MoodStreak >= threshold(BadgeMindfulWeek), BadgeMindfulWeek)
	names = appendIf(names, s.Journals >= int64(threshold(BadgeFirstJournal)), BadgeFirstJournal)
	names = appendIf(names, s.Journals >= int64(threshold(BadgeSteadyWriter)), BadgeSteadyWriter)
	names = appendIf(names, s.Exercises >= int64(threshold(BadgeFirstExercise)), BadgeFirstExercise)
	names = appendIf(names, s.Exercises >= int64(threshold(BadgeBodyAndMind)), BadgeBodyAndMind)
	return names
}

func SocialBadges(s SocialStats) []string {
	var names []string
	names = appendIf(names, s.Upvotes >= int64(threshold(BadgeAppreciated)), BadgeAppreciated)
	names = appendIf(names, s.Upvotes >= int64(threshold(BadgeInspiring)), BadgeInspiring)
	return names
}

func SpecialBadges(s SpecialStats) []string {
	var names []string
	names = appendIf(names, s.LongestStreak >= threshold(BadgeStreak7), BadgeStreak7)
	names = appendIf(names, s.LongestStreak >= threshold(BadgeStreak30), BadgeStreak30)
	names = appendIf(names, s.LongestStreak >= threshold(BadgeStreak100), BadgeStreak100)
	allRound := s.Posts > 0 && s.Sessions > 0 && s.Moods > 0 && s.Journals > 0 && s.Exercises > 0
	names = appendIf(names, allRound, BadgeAllRounder)
	return names
}

func appendIf(names []string, ok bool, name string) []string {
	if ok {
		return append(names, name)
	}
	return names
}

// CheckBadges evaluates one category for an account and awards whatever newly qualifies.
// Calling it again without new activity returns an empty list.
func (e *Engine) CheckBadges(ctx context.Context, accountID string, category BadgeCategory) ([]string, error) {
	if accountID == "" {
		return nil, ErrInvalidAccount
	}
	if _, err := ParseCategory(string(category)); err != nil {
		return nil, err
	}

	var (
		unlocked []string
		out      outcome
	)
	err := e.store.Transaction(ctx, func(tx Store) error {
		u, err := e.beginUnit(ctx, tx, accountID)
		if err != nil {
			return err
		}
		u.enqueue(category)
		if err := u.commit(ctx); err != nil {
			return err
		}
		unlocked = u.unlocked
		out = u.outcome()
		return nil
	})
	if err != nil {
		return nil, e.fail("check_badges", accountID, err)
	}
	e.afterCommit(ctx, out)
	if unlocked == nil {
		unlocked = []string{}
	}
	return unlocked, nil
}

// candidates is the exhaustive category switch; each case gathers its aggregates and
// hands them to the category's pure predicate.
func (u *unitOfWork) candidates(ctx context.Context, category BadgeCategory) ([]string, error) {
	switch category {
	case CategoryMilestone:
		return MilestoneBadges(MilestoneStats{
			TotalPoints: u.account.TotalPoints,
			Level:       u.account.Level,
		}), nil
	case CategoryCommunity:
		counts, err := u.counts(ctx)
		if err != nil {
			return nil, err
		}
		return CommunityBadges(CommunityStats{
			Posts:    counts[KindPostCreated],
			Comments: counts[KindCommentCreated],
		}), nil
	case CategorySession:
		counts, err := u.counts(ctx)
		if err != nil {
			return nil, err
		}
		return SessionBadges(SessionStats{Sessions: counts[KindSessionAttended]}), nil
	case CategoryWellness:
		counts, err := u.counts(ctx)
		if err != nil {
			return nil, err
		}
		streak, err := u.moodStreak(ctx)
		if err != nil {
			return nil, err
		}
		return WellnessBadges(WellnessStats{
			Moods:      counts[KindMoodLogged],
			MoodStreak: streak,
			Journals:   counts[KindJournalWritten],
			Exercises:  counts[KindExerciseCompleted],
		}), nil
	case CategorySocial:
		counts, err := u.counts(ctx)
		if err != nil {
			return nil, err
		}
		return SocialBadges(SocialStats{Upvotes: counts[KindUpvoteReceived]}), nil
	case CategorySpecial:
		counts, err := u.counts(ctx)
		if err != nil {
			return nil, err
		}
		return SpecialBadges(SpecialStats{
			LongestStreak: u.account.LongestStreak,
			Posts:         counts[KindPostCreated],
			Sessions:      counts[KindSessionAttended],
			Moods:         counts[KindMoodLogged],
			Journals:      counts[KindJournalWritten],
			Exercises:     counts[KindExerciseCompleted],
		}), nil
	}
	return nil, fmt.Errorf("%w: %q", ErrInvalidCategory, category)
}

// evaluate runs one category and grants each candidate not yet owned.
func (u *unitOfWork) evaluate(ctx context.Context, category BadgeCategory) error {
	names, err := u.candidates(ctx, category)
	if err != nil {
		return fmt.Errorf("evaluate %s badges: %w", category, err)
	}
	for _, name := range names {
		if err := u.grant(ctx, category, name); err != nil {
			return fmt.Errorf("grant badge %q: %w", name, err)
		}
	}
	return nil
}

func (u *unitOfWork) grant(ctx context.Context, category BadgeCategory, name string) error {
	badge, err := u.tx.BadgeByName(ctx, name)
	if errors.Is(err, ErrBadgeNotFound) {
		u.e.logger.Warn("badge missing from catalog table", zap.String("badge", name))
		return nil
	}
	if err != nil {
		return err
	}
	if !badge.IsActive {
		return nil
	}
	owned, err := u.tx.HasBadge(ctx, u.account.AccountID, badge.ID)
	if err != nil {
		return err
	}
	if owned {
		return nil
	}
	err = u.tx.InsertAccountBadge(ctx, &models.AccountBadge{
		AccountID:  u.account.AccountID,
		BadgeID:    badge.ID,
		UnlockedAt: u.now,
	})
	if errors.Is(err, ErrDuplicate) {
		// a concurrent evaluation won the insert
		return nil
	}
	if err != nil {
		return err
	}
	u.unlocked = append(u.unlocked, badge.Name)
	u.unlockedCategories = append(u.unlockedCategories, category)
	if badge.PointsReward > 0 {
		return u.credit(ctx, KindBadgeUnlocked, badge.PointsReward,
			KindBadgeUnlocked.Label()+": "+badge.Name,
			strconv.FormatUint(uint64(badge.ID), 10), "badge")
	}
	return nil
}

// counts caches the per-kind transaction counts until the next credit.
func (u *unitOfWork) counts(ctx context.Context) (map[PointKind]int64, error) {
	if u.kindCounts != nil {
		return u.kindCounts, nil
	}
	counts, err := u.tx.CountByKind(ctx, u.account.AccountID)
	if err != nil {
		return nil, err
	}
	u.kindCounts = counts
	return counts, nil
}

// moodStreak counts consecutive days with a mood entry, ending today.
func (u *unitOfWork) moodStreak(ctx context.Context) (int, error) {
	since := u.e.calendar.StartOfDay(u.now).AddDate(0, 0, -moodStreakWindow)
	times, err := u.tx.ActivityTimes(ctx, u.account.AccountID, KindMoodLogged, since)
	if err != nil {
		return 0, err
	}
	days := make(map[string]bool, len(times))
	for _, t := range times {
		days[u.e.calendar.Day(t)] = true
	}
	return ConsecutiveDays(days, u.e.calendar.Day(u.now)), nil
}

// ConsecutiveDays counts the run of days present in days that ends at end.
func ConsecutiveDays(days map[string]bool, end string) int {
	n := 0
	day := end
	for days[day] {
		n++
		prev, err := PreviousDay(day)
		if err != nil {
			break
		}
		day = prev
	}
	return n
}
