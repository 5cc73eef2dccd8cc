package rpccontract

const (
	ServiceName = "agentforge.v1.EngineService"
)

const (
	MethodGetHealth       = "/" + ServiceName + "/GetHealth"
	MethodGetCapabilities = "/" + ServiceName + "/GetCapabilities"
	MethodCreateAgent     = "/" + ServiceName + "/CreateAgent"
	MethodListAgents      = "/" + ServiceName + "/ListAgents"
	MethodGetAgent        = "/" + ServiceName + "/GetAgent"
	MethodRemoveAgent     = "/" + ServiceName + "/RemoveAgent"
	MethodExecuteTask     = "/" + ServiceName + "/ExecuteTask"
	MethodStartDemo       = "/" + ServiceName + "/StartDemo"
	MethodGetMetrics      = "/" + ServiceName + "/GetMetrics"
	MethodRunStressTest   = "/" + ServiceName + "/RunStressTest"
	MethodGetRun          = "/" + ServiceName + "/GetRun"
	MethodListRuns        = "/" + ServiceName + "/ListRuns"
	MethodSubscribe       = "/" + ServiceName + "/Subscribe"
)

// LongRunningMethods block for the length of a task run or stress test and
// are exempt from the default unary deadline.
var LongRunningMethods = map[string]struct{}{
	MethodExecuteTask:   {},
	MethodRunStressTest: {},
	MethodSubscribe:     {},
}
