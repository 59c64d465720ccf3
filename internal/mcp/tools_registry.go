package mcp

// registerAllTools registers all MCP tools with the registry
func (s *Server) registerAllTools(r *Registry) {
	Register(r, ToolDef{
		Name: "conversation",
		Description: `Drive codex conversations. Each conversation has at most one running codex process.

Actions:
  launch  — Start codex for a prompt. Requires prompt. A running process for the same
            conversation_id is killed and replaced. Pass history (role/content pairs) to give
            codex the earlier turns, and cwd or workspace_id to choose the working directory.
  cancel  — Kill the running process of conversation_id. Emits a cancelled stream-end.
  events  — Poll buffered UI events of conversation_id. Pass since_index to page.
  list    — List running conversation processes.

Events are also pushed as notifications/message (logger "codexd.events") to the client that
launched the conversation, once it has set a logging level.`,
		Access: AccessRead,
	}, s.handleConversation)

	Register(r, ToolDef{
		Name: "approval",
		Description: `Answer codex approval requests.

Actions:
  respond — Send approved=true|false for request_id to the process that asked.
            Fails once the process has exited or been replaced.
  list    — List pending requests, oldest first. Optionally filter by conversation_id.`,
		Access: AccessRead,
	}, s.handleApproval)

	Register(r, ToolDef{
		Name: "terminal",
		Description: `Manage interactive shell sessions.

Actions:
  create — Start a shell (cwd, shell, mode "pty"|"pipe", cols, rows). Returns pty_id.
  write  — Write data to pty_id verbatim; include "\n" to submit a line.
  kill   — Kill pty_id. No pty-exit event follows a kill.
  list   — List running terminals.
  resize — Set cols and rows of a pty-mode terminal.
  run    — Run one command with sh -c and return stdout, stderr and exit code.

Output arrives as pty-data events and a single pty-exit when the shell exits on its own.`,
		Access: AccessRead,
	}, s.handleTerminal)

	Register(r, ToolDef{
		Name: "history",
		Description: `Browse and manage saved workspaces and conversation history.

Actions:
  workspaces          — List saved workspaces.
  save_workspace      — Create or update a workspace (path required; workspace_id, name optional).
  delete_workspace    — Delete workspace_id and all its conversations.
  conversations       — List conversations, newest first. Optionally filter by workspace_id.
  messages            — List the messages of conversation_id.
  delete_conversation — Delete conversation_id and its messages.`,
		Access: AccessRead,
	}, s.handleHistory)

	Register(r, ToolDef{
		Name: "runtime_config",
		Description: `Inspect or change the codex settings used for new launches.

Actions:
  get — Current settings plus the resolved codex version (or why it failed to run).
  set — Change any of mode, model, profile, sandbox, approval_policy, yolo, web_search,
        skip_git_repo_check, cwd, extra_args. Running processes keep their settings.`,
		Access: AccessRead,
	}, s.handleRuntimeConfig)

	Register(r, ToolDef{
		Name: "notify",
		Description: `Post a message to a Microsoft Teams channel.

Actions:
  send — Post title and content as an Adaptive Card to webhook_url (or the configured
         default). Content over 24000 characters is truncated.`,
		Access: AccessWrite,
	}, s.handleNotify)

	Register(r, ToolDef{
		Name: "token",
		Description: `Manage API tokens. Requires admin scope.

Actions:
  create — Create a token with name and scope ("admin" or "admin:ro"); expires_in_days optional.
           The secret is shown once.
  list   — List tokens with metadata.
  revoke — Revoke token_id.`,
		Access: AccessAdmin,
	}, s.handleToken)
}
