package irc

// This file contains documentation for the IRC event handlers.
// The actual handler implementations are split across:
// - client.go: Connection lifecycle and nick recovery handlers
// - convert.go: Protocol message to typed event conversion
// - commands.go: Outbound commands used by the command queue

/*
Handler Summary:

Connection Events:
- 376/422 (onConnect): End of MOTD / MOTD missing - bot is connected
  - Emits ConnectedEvent so stale channel membership is dropped
  - Identifies to NickServ
  - Joins the configured channels

Messages:
- PRIVMSG (forward): Channel and private messages
  - CTCP ACTION is forwarded as a MessageEvent with Action set
  - Other CTCP requests are forwarded as CTCPEvent and counted by the rate
    limiter; the driver answers VERSION through ReplyVersion

Forwarded as typed events (forward):
- JOIN, PART, QUIT, NICK, KICK: Membership changes
- MODE: Channel mode changes only; user modes are dropped
- TOPIC: Topic changes
- 353: RPL_NAMREPLY - Channel members with prefixes
- 332/331: RPL_TOPIC / RPL_NOTOPIC - Topic sent after the bot joins
- 404/442/471/473/474/475/482: Channel command failures

Nick Issues:
- 432 (onNickHeld): ERR_ERRONEUSNICKNAME - Nick is held
  - Switches to alternate nick
  - Schedules RELEASE and nick change
- 433 (onNickInUse): ERR_NICKNAMEINUSE - Nick in use
  - Switches to alternate nick
  - Schedules GHOST and nick change
  - Rejections of any nick other than the configured one are only logged

Event delivery blocks while the driver's buffer is full and stops once the
client quits.
*/
