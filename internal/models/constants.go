package models

// Publish job statuses. A failed attempt never persists as its own
// status: the job goes straight back to queued (or to abandoned once the
// retry budget is spent).
const (
	JobQueued     = "queued"
	JobClaimed    = "claimed"
	JobPublishing = "publishing"
	JobPublished  = "published"
	JobAbandoned  = "abandoned"
	JobCancelled  = "cancelled"
)

// Checkback task statuses.
const (
	CheckbackPending   = "pending"
	CheckbackRunning   = "running"
	CheckbackCompleted = "completed"
	CheckbackSkipped   = "skipped"
)

// Ledger action types. Claim and defer are bookkeeping phases: they keep
// the audit trail complete but must never count against an action cap, so
// they carry their own types.
const (
	ActionPublish = "publish"
	ActionMetrics = "metrics_fetch"
	ActionLike    = "like"
	ActionComment = "comment"
	ActionFollow  = "follow"
	ActionMessage = "message"

	ActionClaim = "claim"
	ActionDefer = "defer"
)

// Known platforms. The engine does not restrict the set; these are the
// ones the surrounding pipeline currently targets.
const (
	PlatformTikTok    = "tiktok"
	PlatformYouTube   = "youtube"
	PlatformInstagram = "instagram"
	PlatformTwitter   = "twitter"
	PlatformLinkedIn  = "linkedin"
	PlatformFacebook  = "facebook"
)

const (
	// DefaultMaxRetries bounds publish attempts before a job is abandoned.
	DefaultMaxRetries = 3

	// DefaultCheckbackAttempts bounds metric fetches before a task is skipped.
	DefaultCheckbackAttempts = 5

	// DefaultPriority for jobs enqueued without an explicit priority.
	DefaultPriority = 50

	// MaxPriority is the inclusive upper bound of the priority range.
	MaxPriority = 100
)

// DefaultCheckbackOffsetsHours is the measurement cadence seeded after a
// successful publish: +1h, +6h, +24h, +72h, +7d, +30d.
var DefaultCheckbackOffsetsHours = []int{1, 6, 24, 72, 168, 720}
