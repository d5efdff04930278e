package constant

const (
	ProductionEnvironment  = "production"
	DevelopmentEnvironment = "development"
)

const (
	SignalQueueName  = "signal_queue"
	SignalQueueGroup = "signal_group"

	SignalStreamName           = "signal"
	SignalStreamSubjectAll     = "signal.*"
	SignalStreamSubjectExecute = "signal.execute"
)

const (
	DatabaseExecutions = "executions"
	RedisLock          = "lock"
)
