package logging

// Category helpers in the style of Boot/API/Store below keep call sites
// short: logging.Swarm("cycle %d started", n).

func Boot(format string, args ...interface{})  { Get(CategoryBoot).Info(format, args...) }
func API(format string, args ...interface{})   { Get(CategoryAPI).Info(format, args...) }
func Store(format string, args ...interface{}) { Get(CategoryStore).Info(format, args...) }
func Git(format string, args ...interface{})   { Get(CategoryGit).Info(format, args...) }
func Swarm(format string, args ...interface{}) { Get(CategorySwarm).Info(format, args...) }
func Tools(format string, args ...interface{}) { Get(CategoryTools).Info(format, args...) }
func Agent(format string, args ...interface{}) { Get(CategoryAgent).Info(format, args...) }

func Pipeline(format string, args ...interface{}) { Get(CategoryPipeline).Info(format, args...) }
func Strategy(format string, args ...interface{}) { Get(CategoryStrategy).Info(format, args...) }
func Goals(format string, args ...interface{})    { Get(CategoryGoals).Info(format, args...) }
func Planning(format string, args ...interface{}) { Get(CategoryPlanning).Info(format, args...) }
func Monitor(format string, args ...interface{})  { Get(CategoryMonitor).Info(format, args...) }

func APIDebug(format string, args ...interface{})      { Get(CategoryAPI).Debug(format, args...) }
func StoreDebug(format string, args ...interface{})    { Get(CategoryStore).Debug(format, args...) }
func GitDebug(format string, args ...interface{})      { Get(CategoryGit).Debug(format, args...) }
func SwarmDebug(format string, args ...interface{})    { Get(CategorySwarm).Debug(format, args...) }
func ToolsDebug(format string, args ...interface{})    { Get(CategoryTools).Debug(format, args...) }
func AgentDebug(format string, args ...interface{})    { Get(CategoryAgent).Debug(format, args...) }
func PipelineDebug(format string, args ...interface{}) { Get(CategoryPipeline).Debug(format, args...) }
func StrategyDebug(format string, args ...interface{}) { Get(CategoryStrategy).Debug(format, args...) }
func GoalsDebug(format string, args ...interface{})    { Get(CategoryGoals).Debug(format, args...) }
func PlanningDebug(format string, args ...interface{}) { Get(CategoryPlanning).Debug(format, args...) }
func MonitorDebug(format string, args ...interface{})  { Get(CategoryMonitor).Debug(format, args...) }

func APIError(format string, args ...interface{})      { Get(CategoryAPI).Error(format, args...) }
func StoreError(format string, args ...interface{})    { Get(CategoryStore).Error(format, args...) }
func GitError(format string, args ...interface{})      { Get(CategoryGit).Error(format, args...) }
func SwarmError(format string, args ...interface{})    { Get(CategorySwarm).Error(format, args...) }
func ToolsError(format string, args ...interface{})    { Get(CategoryTools).Error(format, args...) }
func AgentError(format string, args ...interface{})    { Get(CategoryAgent).Error(format, args...) }
func PipelineError(format string, args ...interface{}) { Get(CategoryPipeline).Error(format, args...) }
func StrategyError(format string, args ...interface{}) { Get(CategoryStrategy).Error(format, args...) }
func PlanningError(format string, args ...interface{}) { Get(CategoryPlanning).Error(format, args...) }

func SwarmWarn(format string, args ...interface{})    { Get(CategorySwarm).Warn(format, args...) }
func AgentWarn(format string, args ...interface{})    { Get(CategoryAgent).Warn(format, args...) }
func PlanningWarn(format string, args ...interface{}) { Get(CategoryPlanning).Warn(format, args...) }
func GoalsWarn(format string, args ...interface{})    { Get(CategoryGoals).Warn(format, args...) }
