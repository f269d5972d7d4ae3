package model

// Reminder is one entry produced by the reminder computation for a task
// with an upcoming or missed deadline.
type Reminder struct {
	Task                 Task
	MinutesUntilDeadline float64
	IsUrgent             bool
}
