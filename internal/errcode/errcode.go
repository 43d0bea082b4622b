package errcode

// 错误码约定：
// - 0：无错误
// - 4xxx：业务可恢复/告警类错误（输入不合法、资源缺失、抓取无结果）
// - 5xxx：系统错误（持久化/存储失败，需要中断流程）
const (
	OK              = 0
	Validation      = 4001
	ResourceMissing = 4004
	Extraction      = 4005
	SystemError     = 5000
	Persistence     = 5001
	Upload          = 5002
)
