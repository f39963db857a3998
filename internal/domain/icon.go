package domain

// IconName is one of the built-in icons a progress update may show.
type IconName string

var iconNames = []string{
	"analytics",
	"atom",
	"bolt",
	"book-open",
	"book-closed",
	"calendar",
	"chart",
	"circle-question",
	"compass",
	"cube",
	"globe",
	"keys",
	"lab",
	"images",
	"lifesaver",
	"lightbulb",
	"map-pin",
	"name",
	"notebook",
	"notebook-pencil",
	"page-blank",
	"profile",
	"profile-card",
	"search",
	"sparkle",
	"sparkle-double",
	"square-code",
	"square-image",
	"square-text",
	"suitcase",
	"write",
	"write-alt",
	"write-alt2",
}

// IconNames returns the closed set of icon names.
func IconNames() []string {
	return append([]string(nil), iconNames...)
}

// FeedbackKind rates one or more items.
type FeedbackKind string

const (
	FeedbackPositive FeedbackKind = "positive"
	FeedbackNegative FeedbackKind = "negative"
)

var feedbackKinds = []string{string(FeedbackPositive), string(FeedbackNegative)}
