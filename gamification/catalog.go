package gamification

import "github.com/mindhaven/mindhaven/models"

// BadgeCategory is the closed set of badge check groups.
type BadgeCategory string

const (
	CategoryMilestone BadgeCategory = "milestone"
	CategoryCommunity BadgeCategory = "community"
	CategorySession   BadgeCategory = "session"
	CategoryWellness  BadgeCategory = "wellness"
	CategorySocial    BadgeCategory = "social"
	CategorySpecial   BadgeCategory = "special"
)

// Categories lists every category in evaluation order.
func Categories() []BadgeCategory {
	return []BadgeCategory{
		CategoryMilestone,
		CategoryCommunity,
		CategorySession,
		CategoryWellness,
		CategorySocial,
		CategorySpecial,
	}
}

// ParseCategory validates a category name.
func ParseCategory(s string) (BadgeCategory, error) {
	for _, c := range Categories() {
		if string(c) == s {
			return c, nil
		}
	}
	return "", ErrInvalidCategory
}

// Badge names double as award keys.
const (
	BadgeFirstStep      = "Primer Paso"
	BadgeHalfThousand   = "Medio Millar"
	BadgeThousandPoints = "Mil Puntos"
	BadgeLevelFive      = "Nivel 5"
	BadgeLevelTen       = "Nivel 10"

	BadgeFirstPost     = "Primera Publicación"
	BadgeActiveVoice   = "Voz Activa"
	BadgeFirstComment  = "Primer Comentario"
	BadgeConversation  = "Conversador"
	BadgeFirstSession  = "Primera Sesión"
	BadgeCommitted     = "Compromiso Terapéutico"
	BadgeLongJourney   = "Camino Recorrido"
	BadgeFirstMood     = "Registro Emocional"
	BadgeMindfulWeek   = "Semana Consciente"
	BadgeFirstJournal  = "Diario Íntimo"
	BadgeSteadyWriter  = "Escritor Constante"
	BadgeFirstExercise = "Primer Ejercicio"
	BadgeBodyAndMind   = "Cuerpo y Mente"
	BadgeAppreciated   = "Apreciado"
	BadgeInspiring     = "Inspirador"
	BadgeStreak7       = "Racha de 7"
	BadgeStreak30      = "Racha de 30"
	BadgeStreak100     = "Racha de 100"
	BadgeAllRounder    = "Todoterreno"
)

// BadgeDefinition is the compiled form of a catalog entry.
type BadgeDefinition struct {
	Name         string
	Description  string
	Category     BadgeCategory
	Threshold    int
	PointsReward int
}

var catalog = []BadgeDefinition{
	{BadgeFirstStep, "Alcanza 100 puntos", CategoryMilestone, 100, 10},
	{BadgeHalfThousand, "Alcanza 500 puntos", CategoryMilestone, 500, 25},
	{BadgeThousandPoints, "Alcanza 1000 puntos", CategoryMilestone, 1000, 50},
	{BadgeLevelFive, "Llega al nivel 5", CategoryMilestone, 5, 50},
	{BadgeLevelTen, "Llega al nivel 10", CategoryMilestone, 10, 200},

	{BadgeFirstPost, "Publica tu primer mensaje en la comunidad", CategoryCommunity, 1, 10},
	{BadgeActiveVoice, "Publica 10 mensajes en la comunidad", CategoryCommunity, 10, 30},
	{BadgeFirstComment, "Escribe tu primer comentario", CategoryCommunity, 1, 5},
	{BadgeConversation, "Escribe 25 comentarios", CategoryCommunity, 25, 25},

	{BadgeFirstSession, "Asiste a tu primera sesión", CategorySession, 1, 0},
	{BadgeCommitted, "Asiste a 10 sesiones", CategorySession, 10, 100},
	{BadgeLongJourney, "Asiste a 25 sesiones", CategorySession, 25, 200},

	{BadgeFirstMood, "Registra tu estado de ánimo por primera vez", CategoryWellness, 1, 5},
	{BadgeMindfulWeek, "Registra tu estado de ánimo 7 días seguidos", CategoryWellness, 7, 50},
	{BadgeFirstJournal, "Escribe tu primera entrada de diario", CategoryWellness, 1, 5},
	{BadgeSteadyWriter, "Escribe 30 entradas de diario", CategoryWellness, 30, 100},
	{BadgeFirstExercise, "Completa tu primer ejercicio", CategoryWellness, 1, 5},
	{BadgeBodyAndMind, "Completa 50 ejercicios", CategoryWellness, 50, 100},

	{BadgeAppreciated, "Recibe 10 votos positivos", CategorySocial, 10, 15},
	{BadgeInspiring, "Recibe 100 votos positivos", CategorySocial, 100, 75},

	{BadgeStreak7, "Mantén una racha de 7 días", CategorySpecial, 7, 0},
	{BadgeStreak30, "Mantén una racha de 30 días", CategorySpecial, 30, 0},
	{BadgeStreak100, "Mantén una racha de 100 días", CategorySpecial, 100, 0},
	{BadgeAllRounder, "Publica, asiste a una sesión, registra tu ánimo, escribe en tu diario y completa un ejercicio", CategorySpecial, 5, 50},
}

// Catalog returns a copy of the compiled badge catalog.
func Catalog() []BadgeDefinition {
	out := make([]BadgeDefinition, len(catalog))
	copy(out, catalog)
	return out
}

func definition(name string) (BadgeDefinition, bool) {
	for _, d := range catalog {
		if d.Name == name {
			return d, true
		}
	}
	return BadgeDefinition{}, false
}

func threshold(name string) int {
	d, _ := definition(name)
	return d.Threshold
}

// CatalogModels converts the catalog into rows for UpsertBadges.
func CatalogModels() []models.Badge {
	rows := make([]models.Badge, 0, len(catalog))
	for _, d := range catalog {
		rows = append(rows, models.Badge{
			Name:         d.Name,
			Description:  d.Description,
			PointsReward: d.PointsReward,
			Category:     string(d.Category),
			Threshold:    d.Threshold,
			IsActive:     true,
		})
	}
	return rows
}
