package strategy

// Evaluators: пара оценщиков одного инструмента.
type Evaluators struct {
	Entry *Entry
	Exit  *Exit
}

func NewEvaluators(cfg Config) Evaluators {
	return Evaluators{Entry: NewEntry(cfg), Exit: NewExit(cfg)}
}
