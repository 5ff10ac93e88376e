package models

import "time"

// RunStatus is the lifecycle state of a training run
type RunStatus string

const (
	RunPending   RunStatus = "pending"
	RunRunning   RunStatus = "running"
	RunCompleted RunStatus = "completed"
	RunFailed    RunStatus = "failed"
)

// ClassMetrics holds the held-out scores of one class
type ClassMetrics struct {
	Precision float64 `json:"precision"`
	Recall    float64 `json:"recall"`
	F1        float64 `json:"f1_score"`
	Support   int     `json:"support"`
}

// Report mirrors a classification report over the test partition
type Report struct {
	Classes     map[int]ClassMetrics `json:"classes"`
	Accuracy    float64              `json:"accuracy"`
	MacroAvg    ClassMetrics         `json:"macro_avg"`
	WeightedAvg ClassMetrics         `json:"weighted_avg"`
	TrainSize   int                  `json:"train_size"`
	TestSize    int                  `json:"test_size"`
}

// TrainingRun tracks an asynchronous training job
type TrainingRun struct {
	ID           string     `json:"id" db:"id"`
	Status       RunStatus  `json:"status" db:"status"`
	WindowCount  int        `json:"window_count" db:"window_count"`
	Report       *Report    `json:"report,omitempty" db:"-"`
	ModelPath    string     `json:"model_path,omitempty" db:"model_path"`
	CreatedAt    time.Time  `json:"created_at" db:"created_at"`
	CompletedAt  *time.Time `json:"completed_at,omitempty" db:"completed_at"`
	ErrorMessage string     `json:"error_message,omitempty" db:"error_message"`
}
