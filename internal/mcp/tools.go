package mcp

import "github.com/mark3labs/mcp-go/mcp"

var callerArg = mcp.WithString("caller_id", mcp.Required(), mcp.Description("User acting on the capsule"))

var createToolDef = mcp.NewTool("capsule_create",
	mcp.WithDescription("Seal a new time capsule for a recipient. It cannot be read until unlocks_at."),
	callerArg,
	mcp.WithString("recipient_id", mcp.Required(), mcp.Description("Recipient user id")),
	mcp.WithString("title", mcp.Description("Optional title (max 200 chars)")),
	mcp.WithString("body", mcp.Required(), mcp.Description("Markdown body (max 20000 chars)")),
	mcp.WithString("theme", mcp.Description("Optional presentation theme")),
	mcp.WithNumber("unlocks_at", mcp.Required(), mcp.Description("Unlock time in Unix seconds, must be in the future")),
	mcp.WithBoolean("is_anonymous", mcp.Description("Hide the sender until reveal")),
	mcp.WithNumber("reveal_delay_seconds", mcp.Description("Seconds after opening before the sender is revealed (anonymous only, 0..259200)")),
	mcp.WithArray("hints", mcp.Description("Up to 3 hints released over the reveal delay (anonymous only)"),
		mcp.Items(map[string]any{"type": "string"})),
)

var listToolDef = mcp.NewTool("capsule_list",
	mcp.WithDescription("List capsules in the caller's inbox or outbox, newest first"),
	callerArg,
	mcp.WithString("box", mcp.Required(), mcp.Enum("inbox", "outbox"), mcp.Description("Which side to list")),
	mcp.WithString("status", mcp.Description("Filter by status: sealed, ready, opened, revealed, expired")),
	mcp.WithNumber("limit", mcp.Description("Page size (default 20, max 100)")),
	mcp.WithNumber("offset", mcp.Description("Page offset")),
	mcp.WithBoolean("include_withdrawn", mcp.Description("Outbox only: include withdrawn capsules")),
)

var fetchToolDef = mcp.NewTool("capsule_fetch",
	mcp.WithDescription("Fetch one capsule as seen by the caller. The body is hidden until opened."),
	callerArg,
	mcp.WithString("id", mcp.Required(), mcp.Description("Capsule id")),
)

var openToolDef = mcp.NewTool("capsule_open",
	mcp.WithDescription("Open a capsule whose unlock time has passed (recipient only)"),
	callerArg,
	mcp.WithString("id", mcp.Required(), mcp.Description("Capsule id")),
)

var withdrawToolDef = mcp.NewTool("capsule_withdraw",
	mcp.WithDescription("Withdraw a sealed capsule before it unlocks (sender only)"),
	callerArg,
	mcp.WithString("id", mcp.Required(), mcp.Description("Capsule id")),
)

var updateToolDef = mcp.NewTool("capsule_update",
	mcp.WithDescription("Edit the title, body or theme of a sealed capsule (sender only). Lifecycle fields are rejected."),
	callerArg,
	mcp.WithString("id", mcp.Required(), mcp.Description("Capsule id")),
	mcp.WithString("title", mcp.Description("New title")),
	mcp.WithString("body", mcp.Description("New markdown body")),
	mcp.WithString("theme", mcp.Description("New theme, empty string clears it")),
)

var hintToolDef = mcp.NewTool("capsule_hint",
	mcp.WithDescription("Get the current hint for an opened anonymous capsule (recipient only)"),
	callerArg,
	mcp.WithString("id", mcp.Required(), mcp.Description("Capsule id")),
)

var purgeToolDef = mcp.NewTool("capsule_purge",
	mcp.WithDescription("Permanently delete withdrawn capsules with their hints and share tokens"),
	mcp.WithNumber("older_than_days", mcp.Description("Only purge capsules withdrawn more than N days ago")),
)

var sweepToolDef = mcp.NewTool("capsule_sweep",
	mcp.WithDescription("Run one pass of due promotions and sender reveals"),
)

var shareCreateToolDef = mcp.NewTool("share_create",
	mcp.WithDescription("Issue a public countdown link for a sealed capsule (sender only)"),
	callerArg,
	mcp.WithString("capsule_id", mcp.Required(), mcp.Description("Capsule id")),
	mcp.WithString("share_kind", mcp.Description("Label for the share (default link)")),
	mcp.WithNumber("expires_at", mcp.Description("Optional expiry in Unix seconds")),
)

var shareListToolDef = mcp.NewTool("share_list",
	mcp.WithDescription("List share tokens issued for a capsule (sender only)"),
	callerArg,
	mcp.WithString("capsule_id", mcp.Required(), mcp.Description("Capsule id")),
)

var shareRevokeToolDef = mcp.NewTool("share_revoke",
	mcp.WithDescription("Revoke a share token (issuer only)"),
	callerArg,
	mcp.WithString("share_id", mcp.Required(), mcp.Description("Share id")),
)

var shareResolveToolDef = mcp.NewTool("share_resolve",
	mcp.WithDescription("Resolve a share token to its public countdown projection"),
	mcp.WithString("token", mcp.Required(), mcp.Description("Share token")),
)

var connectToolDef = mcp.NewTool("connection_add",
	mcp.WithDescription("Record that the caller is connected to another user"),
	callerArg,
	mcp.WithString("other_id", mcp.Required(), mcp.Description("Other user id")),
)

var disconnectToolDef = mcp.NewTool("connection_remove",
	mcp.WithDescription("Remove the caller's connection to another user"),
	callerArg,
	mcp.WithString("other_id", mcp.Required(), mcp.Description("Other user id")),
)
