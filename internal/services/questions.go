package services

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sort"

	"trivia-arena/internal/models"
)

// QuestionSupply hands out the ordered questions for one game.
type QuestionSupply interface {
	KnownSets() []string
	DrawQuestions(ctx context.Context, settings models.Settings) ([]models.Question, error)
}

type QuestionDatabase struct {
	questions []models.Question
	sets      map[string][]int
}

func NewQuestionDatabase() *QuestionDatabase {
	return NewQuestionDatabaseFrom(defaultQuestions())
}

// NewQuestionDatabaseFrom indexes questions by their category, which doubles
// as the question set id.
func NewQuestionDatabaseFrom(questions []models.Question) *QuestionDatabase {
	qd := &QuestionDatabase{
		questions: append([]models.Question(nil), questions...),
		sets:      make(map[string][]int),
	}
	for i, q := range qd.questions {
		qd.sets[q.Category] = append(qd.sets[q.Category], i)
	}
	return qd
}

func (qd *QuestionDatabase) KnownSets() []string {
	sets := make([]string, 0, len(qd.sets))
	for set := range qd.sets {
		sets = append(sets, set)
	}
	sort.Strings(sets)
	return sets
}

// DrawQuestions shuffles the selected sets and deals QuestionCount
// questions, reshuffling the pool when a game needs more than it holds.
func (qd *QuestionDatabase) DrawQuestions(ctx context.Context, settings models.Settings) ([]models.Question, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var pool []int
	for _, set := range settings.QuestionSetIDs {
		idx, ok := qd.sets[set]
		if !ok {
			return nil, fmt.Errorf("unknown question set %q", set)
		}
		pool = append(pool, idx...)
	}
	if len(pool) == 0 {
		return nil, fmt.Errorf("no questions available")
	}

	out := make([]models.Question, 0, settings.QuestionCount)
	for len(out) < settings.QuestionCount {
		rand.Shuffle(len(pool), func(i, j int) { pool[i], pool[j] = pool[j], pool[i] })
		for _, i := range pool {
			if len(out) == settings.QuestionCount {
				break
			}
			q := qd.questions[i]
			q.Options = append([]string(nil), q.Options...)
			out = append(out, q)
		}
	}
	return out, nil
}

func defaultQuestions() []models.Question {
	return []models.Question{
		{ID: "geo-1", Text: "What is the capital of France?", Options: []string{"London", "Berlin", "Paris", "Madrid"}, Correct: 2, Category: "geography", Difficulty: "easy"},
		{ID: "geo-2", Text: "What is the largest ocean on Earth?", Options: []string{"Atlantic", "Indian", "Pacific", "Arctic"}, Correct: 2, Category: "geography", Difficulty: "easy"},
		{ID: "geo-3", Text: "Which country has the most natural lakes?", Options: []string{"Russia", "Canada", "USA", "Finland"}, Correct: 1, Category: "geography", Difficulty: "hard", BasePoints: 150},
		{ID: "geo-4", Text: "What is the longest river in South America?", Options: []string{"Orinoco", "Paraná", "Amazon", "Magdalena"}, Correct: 2, Category: "geography", Difficulty: "medium"},
		{ID: "sci-1", Text: "Which planet is known as the Red Planet?", Options: []string{"Venus", "Mars", "Jupiter", "Saturn"}, Correct: 1, Category: "science", Difficulty: "easy"},
		{ID: "sci-2", Text: "What is the chemical symbol for gold?", Options: []string{"Go", "Gd", "Au", "Ag"}, Correct: 2, Category: "science", Difficulty: "medium"},
		{ID: "sci-3", Text: "What gas do plants absorb from the atmosphere?", Options: []string{"Oxygen", "Carbon dioxide", "Nitrogen", "Helium"}, Correct: 1, Category: "science", Difficulty: "easy"},
		{ID: "sci-4", Text: "What is the hardest natural substance?", Options: []string{"Quartz", "Iron", "Diamond", "Granite"}, Correct: 2, Category: "science", Difficulty: "medium"},
		{ID: "math-1", Text: "What is 2 + 2?", Options: []string{"3", "4", "5", "6"}, Correct: 1, Category: "math", Difficulty: "easy"},
		{ID: "math-2", Text: "What is the square root of 144?", Options: []string{"10", "11", "12", "14"}, Correct: 2, Category: "math", Difficulty: "easy"},
		{ID: "math-3", Text: "How many sides does a hexagon have?", Options: []string{"5", "6", "7", "8"}, Correct: 1, Category: "math", Difficulty: "easy"},
		{ID: "math-4", Text: "What is 15% of 200?", Options: []string{"20", "25", "30", "35"}, Correct: 2, Category: "math", Difficulty: "medium"},
		{ID: "art-1", Text: "Who painted the Mona Lisa?", Options: []string{"Van Gogh", "Picasso", "Da Vinci", "Monet"}, Correct: 2, Category: "art", Difficulty: "easy"},
		{ID: "art-2", Text: "Which artist cut off part of his own ear?", Options: []string{"Van Gogh", "Dalí", "Rembrandt", "Matisse"}, Correct: 0, Category: "art", Difficulty: "medium"},
		{ID: "art-3", Text: "In which city is the Prado museum?", Options: []string{"Lisbon", "Madrid", "Rome", "Paris"}, Correct: 1, Category: "art", Difficulty: "medium"},
		{ID: "hist-1", Text: "In which year did World War II end?", Options: []string{"1944", "1945", "1946", "1947"}, Correct: 1, Category: "history", Difficulty: "easy"},
		{ID: "hist-2", Text: "Who was the first person to walk on the Moon?", Options: []string{"Buzz Aldrin", "Yuri Gagarin", "Neil Armstrong", "John Glenn"}, Correct: 2, Category: "history", Difficulty: "easy"},
		{ID: "hist-3", Text: "Which empire built Machu Picchu?", Options: []string{"Aztec", "Maya", "Inca", "Olmec"}, Correct: 2, Category: "history", Difficulty: "medium"},
		{ID: "tech-1", Text: "Which programming language was created by Google?", Options: []string{"Java", "Python", "Go", "C++"}, Correct: 2, Category: "technology", Difficulty: "easy"},
		{ID: "tech-2", Text: "What does HTTP stand for?", Options: []string{"HyperText Transfer Protocol", "High Transfer Text Protocol", "Hyperlink Text Transport Protocol", "Host Transfer Protocol"}, Correct: 0, Category: "technology", Difficulty: "easy"},
		{ID: "tech-3", Text: "How many bits are in a byte?", Options: []string{"4", "8", "16", "32"}, Correct: 1, Category: "technology", Difficulty: "easy"},
		{ID: "nat-1", Text: "What is the fastest land animal?", Options: []string{"Lion", "Cheetah", "Leopard", "Tiger"}, Correct: 1, Category: "nature", Difficulty: "easy"},
		{ID: "nat-2", Text: "What is the largest mammal?", Options: []string{"Elephant", "Blue whale", "Giraffe", "Orca"}, Correct: 1, Category: "nature", Difficulty: "easy"},
		{ID: "nat-3", Text: "How many legs does a spider have?", Options: []string{"6", "8", "10", "12"}, Correct: 1, Category: "nature", Difficulty: "easy"},
	}
}
