package realtime

// -----------------------------------------------------------------------------
// Personal topics
// -----------------------------------------------------------------------------

// The three per-user streams the tracker subscribes to after every successful
// (re)connect. The order is not semantically important but is kept fixed for
// determinism.
const (
	TopicPersonalResults         = "/user/topic/newResults"
	TopicPersonalSubmissions     = "/user/topic/newSubmissions"
	TopicPersonalBuildProcessing = "/user/topic/submissionProcessing"
)

// -----------------------------------------------------------------------------

// PersonalTopics returns the auto-subscribed topics in their fixed order.
func PersonalTopics() []string {
	return []string{
		TopicPersonalResults,
		TopicPersonalSubmissions,
		TopicPersonalBuildProcessing,
	}
}
