package relay

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"chatrelay/internal/message"
)

type command int

const (
	// cmdMsg - no command at all, or /msg
	cmdMsg command = iota
	// cmdListen - /listen, allow incoming messages
	cmdListen
	// cmdNick - /nick NICK, set or change nickname, allow outgoing messages
	cmdNick
)

var commandWords = [...]string{
	cmdMsg:    "msg",
	cmdListen: "listen",
	cmdNick:   "nick",
}

func (c command) String() string {
	if int(c) < len(commandWords) {
		return commandWords[c]
	}
	return "unknown"
}

// Texts sent back to a single client.
const (
	textConnected     = "Connected."
	textEmptyNickname = "Error: empty nickname specified. Use '/nick NICK' again."
	textNickFirst     = "Error: use '/nick NICK' before messaging."
	textRelayFull     = "Error: relay is full."
)

// detectCommand splits line into a command and its text. The command word must
// be followed by the end of line or a space; spaces before the text are skipped.
// Anything else is a plain message and the text is the whole line.
func detectCommand(line string) (command, string) {
	if len(line) < 2 || line[0] != '/' {
		return cmdMsg, line
	}
	for i, word := range commandWords {
		rest, ok := strings.CutPrefix(line[1:], word)
		if !ok || (rest != "" && rest[0] != ' ') {
			continue
		}
		return command(i), strings.TrimLeft(rest, " ")
	}
	return cmdMsg, line
}

// boundedNickname takes the first word of text and keeps at most limit-1
// bytes of it without splitting a rune.
func boundedNickname(text string, limit int) string {
	if i := strings.IndexByte(text, ' '); i >= 0 {
		text = text[:i]
	}
	if n := limit - 1; len(text) > n {
		text = text[:n]
		for len(text) > 0 && !utf8.ValidString(text) {
			text = text[:len(text)-1]
		}
	}
	return text
}

// process handles one line received from c.
func (r *Relay) process(c *Connection, m *message.Message) {
	line := m.String()
	if i := strings.IndexByte(line, 0); i >= 0 {
		line = line[:i]
	}

	cmd, text := detectCommand(line)
	switch cmd {
	case cmdListen:
		c.grant(CanReceive)
		logInfo(r.logger, "Listen:", c)
	case cmdNick:
		r.changeNickname(c, text)
	default:
		if !c.roles.Has(CanSend) {
			r.unicast(c, r.newMessage(textNickFirst))
			return
		}
		r.usrmsg(c.nickname, text)
	}
}

func (r *Relay) changeNickname(c *Connection, text string) {
	nickname := boundedNickname(text, r.nicknameLength)
	if nickname == "" {
		r.unicast(c, r.newMessage(textEmptyNickname))
		return
	}

	announcement := fmt.Sprintf("'%s' is now '%s'.", c.nickname, nickname)
	if !c.roles.Has(CanSend) {
		announcement = fmt.Sprintf("'%s' has joined the chat.", nickname)
	}
	c.nickname = nickname
	c.grant(CanSend)

	r.sysmsg(announcement)
	r.unicast(c, r.newMessage(textConnected))
}
