package service

// Classifier is a binary classifier over scaled feature rows.
// PredictProba returns one [p(class 0), p(class 1)] pair per row.
type Classifier interface {
	Name() string
	PredictProba(rows [][]float64) [][]float64
	Predict(rows [][]float64) []int
}
