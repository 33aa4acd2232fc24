package gamification

// Unbounded marks the open upper end of the top level.
const Unbounded = -1

// LevelInfo is one tier of the level table. MaxPoints is Unbounded for the last tier.
type LevelInfo struct {
	Level     int    `json:"level"`
	Name      string `json:"name"`
	MinPoints int    `json:"min_points"`
	MaxPoints int    `json:"max_points"`
}

// Ranges are contiguous and ordered; exactly one tier matches any non-negative total.
var levelTable = []LevelInfo{
	{Level: 1, Name: "Principiante", MinPoints: 0, MaxPoints: 99},
	{Level: 2, Name: "Explorador", MinPoints: 100, MaxPoints: 299},
	{Level: 3, Name: "Aprendiz", MinPoints: 300, MaxPoints: 599},
	{Level: 4, Name: "Constante", MinPoints: 600, MaxPoints: 999},
	{Level: 5, Name: "Perseverante", MinPoints: 1000, MaxPoints: 1499},
	{Level: 6, Name: "Resiliente", MinPoints: 1500, MaxPoints: 2499},
	{Level: 7, Name: "Guía", MinPoints: 2500, MaxPoints: 3999},
	{Level: 8, Name: "Mentor", MinPoints: 4000, MaxPoints: 5999},
	{Level: 9, Name: "Sabio", MinPoints: 6000, MaxPoints: 9999},
	{Level: 10, Name: "Maestro Zen", MinPoints: 10000, MaxPoints: Unbounded},
}

// MaxLevel is the highest reachable level.
var MaxLevel = levelTable[len(levelTable)-1].Level

// Levels returns a copy of the level table.
func Levels() []LevelInfo {
	out := make([]LevelInfo, len(levelTable))
	copy(out, levelTable)
	return out
}

// LevelFor returns the tier containing totalPoints.
func LevelFor(totalPoints int) (LevelInfo, error) {
	if totalPoints < 0 {
		return LevelInfo{}, ErrNegativePoints
	}
	return levelTable[levelIndex(totalPoints)], nil
}

// PointsToNextLevel is 0 at the top tier.
func PointsToNextLevel(totalPoints int) (int, error) {
	if totalPoints < 0 {
		return 0, ErrNegativePoints
	}
	i := levelIndex(totalPoints)
	if i == len(levelTable)-1 {
		return 0, nil
	}
	return levelTable[i+1].MinPoints - totalPoints, nil
}

// ProgressPercent is the progress through the current tier, clamped to [0,100] and 100 at the top tier.
func ProgressPercent(totalPoints int) (float64, error) {
	if totalPoints < 0 {
		return 0, ErrNegativePoints
	}
	i := levelIndex(totalPoints)
	if i == len(levelTable)-1 {
		return 100, nil
	}
	cur, next := levelTable[i], levelTable[i+1]
	pct := float64(totalPoints-cur.MinPoints) / float64(next.MinPoints-cur.MinPoints) * 100
	switch {
	case pct < 0:
		return 0, nil
	case pct > 100:
		return 100, nil
	}
	return pct, nil
}

func levelIndex(totalPoints int) int {
	for i := len(levelTable) - 1; i > 0; i-- {
		if totalPoints >= levelTable[i].MinPoints {
			return i
		}
	}
	return 0
}
