package parser

// Code identifies a recognized kind of server message
type Code int

const (
	CodeError Code = iota
	CodePing
	CodeAuthenticate

	CodeInvite
	CodeJoin
	CodeKick
	CodeModeChannel
	CodeModeUser
	CodeNick
	CodeNoticeChannel
	CodeNoticeUser
	CodePart
	CodePong
	CodePrivmsgChannel
	CodePrivmsgUser
	CodeQuit
	CodeTopic
	CodeCap

	CodeAway
	CodeBadChannelKey
	CodeBannedFromChan
	CodeCannotSendToChan
	CodeChannelIsFull
	CodeEndOfWhois
	CodeErroneousNickname
	CodeInviteOnlyChan
	CodeModeReply
	CodeNamesReply
	CodeEndOfNames
	CodeNicknameInUse
	CodeNoSuchNick
	CodeNoSuchServer
	CodeNowAway
	CodeTopicReply
	CodeTopicStamp
	CodeTryAgain
	CodeUnaway
	CodeWelcome
	CodeWhoisChannels
	CodeWhoisHost
	CodeWhoisLoggedIn
	CodeWhoisOperator
	CodeWhoisRegNick
	CodeWhoisSecure
	CodeWhoisServer
	CodeWhoisUser
	CodeWhoisIdle
	CodeListReply
	CodeListEnd
	CodeUnknownCommand
	CodeLoggedIn
	CodeSASLSuccess
	CodeSASLFail
	CodeSASLTooLong
	CodeSASLAborted
	CodeSASLAlready

	codeCount
)

var codeNames = [...]string{
	CodeError:             "ERROR",
	CodePing:              "PING",
	CodeAuthenticate:      "AUTHENTICATE",
	CodeInvite:            "INVITE",
	CodeJoin:              "JOIN",
	CodeKick:              "KICK",
	CodeModeChannel:       "MODE_CHANNEL",
	CodeModeUser:          "MODE_USER",
	CodeNick:              "NICK",
	CodeNoticeChannel:     "NOTICE_CHANNEL",
	CodeNoticeUser:        "NOTICE_USER",
	CodePart:              "PART",
	CodePong:              "PONG",
	CodePrivmsgChannel:    "PRIVMSG_CHANNEL",
	CodePrivmsgUser:       "PRIVMSG_USER",
	CodeQuit:              "QUIT",
	CodeTopic:             "TOPIC",
	CodeCap:               "CAP",
	CodeAway:              "RPL_AWAY",
	CodeBadChannelKey:     "ERR_BADCHANNELKEY",
	CodeBannedFromChan:    "ERR_BANNEDFROMCHAN",
	CodeCannotSendToChan:  "ERR_CANNOTSENDTOCHAN",
	CodeChannelIsFull:     "ERR_CHANNELISFULL",
	CodeEndOfWhois:        "RPL_ENDOFWHOIS",
	CodeErroneousNickname: "ERR_ERRONEUSNICKNAME",
	CodeInviteOnlyChan:    "ERR_INVITEONLYCHAN",
	CodeModeReply:         "RPL_CHANNELMODEIS",
	CodeNamesReply:        "RPL_NAMREPLY",
	CodeEndOfNames:        "RPL_ENDOFNAMES",
	CodeNicknameInUse:     "ERR_NICKNAMEINUSE",
	CodeNoSuchNick:        "ERR_NOSUCHNICK",
	CodeNoSuchServer:      "ERR_NOSUCHSERVER",
	CodeNowAway:           "RPL_NOWAWAY",
	CodeTopicReply:        "RPL_TOPIC",
	CodeTopicStamp:        "RPL_TOPICWHOTIME",
	CodeTryAgain:          "RPL_TRYAGAIN",
	CodeUnaway:            "RPL_UNAWAY",
	CodeWelcome:           "RPL_WELCOME",
	CodeWhoisChannels:     "RPL_WHOISCHANNELS",
	CodeWhoisHost:         "RPL_WHOISHOST",
	CodeWhoisLoggedIn:     "RPL_WHOISLOGGEDIN",
	CodeWhoisOperator:     "RPL_WHOISOPERATOR",
	CodeWhoisRegNick:      "RPL_WHOISREGNICK",
	CodeWhoisSecure:       "RPL_WHOISSECURE",
	CodeWhoisServer:       "RPL_WHOISSERVER",
	CodeWhoisUser:         "RPL_WHOISUSER",
	CodeWhoisIdle:         "RPL_WHOISIDLE",
	CodeListReply:         "RPL_LIST",
	CodeListEnd:           "RPL_LISTEND",
	CodeUnknownCommand:    "ERR_UNKNOWNCOMMAND",
	CodeLoggedIn:          "RPL_LOGGEDIN",
	CodeSASLSuccess:       "RPL_SASLSUCCESS",
	CodeSASLFail:          "ERR_SASLFAIL",
	CodeSASLTooLong:       "ERR_SASLTOOLONG",
	CodeSASLAborted:       "ERR_SASLABORTED",
	CodeSASLAlready:       "ERR_SASLALREADY",
}

func (c Code) String() string {
	if c >= 0 && c < codeCount {
		return codeNames[c]
	}
	return "UNKNOWN"
}

// entry maps a command word and an argument format to a Code.
//
// Format characters, read left to right against the tokens of a line:
//
//	I  ignore the token
//	c  contact handle (membership prefix stripped, cut at '!')
//	C  like c, followed by the stripped membership prefix as a ModeChar
//	r  room handle
//	d  unsigned decimal
//	s  the token as is
//	:  the trailing argument, required
//	.  the trailing argument, optional
//	v  apply the next format character to every remaining token
type entry struct {
	word     string
	format   string
	code     Code
	prefixed bool
}

// Entries are tried in order; the first one that decodes a line wins.
var table = []entry{
	{"ERROR", "I:", CodeError, false},
	{"PING", "Is", CodePing, false},
	{"AUTHENTICATE", "Is", CodeAuthenticate, false},

	{"INVITE", "cIcr", CodeInvite, true},
	{"JOIN", "cIr", CodeJoin, true},
	{"KICK", "cIrc.", CodeKick, true},
	{"MODE", "IIrvs", CodeModeChannel, true},
	{"MODE", "IIcvs", CodeModeUser, true},
	{"NICK", "cIc", CodeNick, true},
	{"NOTICE", "cIr:", CodeNoticeChannel, true},
	{"NOTICE", "cIc:", CodeNoticeUser, true},
	{"PART", "cIr.", CodePart, true},
	{"PONG", "IIs.", CodePong, true},
	{"PRIVMSG", "cIr:", CodePrivmsgChannel, true},
	{"PRIVMSG", "cIc:", CodePrivmsgUser, true},
	{"QUIT", "cI.", CodeQuit, true},
	{"TOPIC", "cIr.", CodeTopic, true},
	{"CAP", "IIIs:", CodeCap, true},

	{"301", "IIIc:", CodeAway, true},
	{"475", "IIIr", CodeBadChannelKey, true},
	{"474", "IIIr", CodeBannedFromChan, true},
	{"404", "IIIr", CodeCannotSendToChan, true},
	{"471", "IIIr", CodeChannelIsFull, true},
	{"318", "IIIc", CodeEndOfWhois, true},
	{"432", "III", CodeErroneousNickname, true},
	{"473", "IIIr", CodeInviteOnlyChan, true},
	{"324", "IIIrvs", CodeModeReply, true},
	{"353", "IIIIrvC", CodeNamesReply, true},
	{"366", "IIIr", CodeEndOfNames, true},
	{"433", "III", CodeNicknameInUse, true},
	{"401", "IIIc", CodeNoSuchNick, true},
	{"402", "IIIs:", CodeNoSuchServer, true},
	{"306", "III", CodeNowAway, true},
	{"332", "IIIr:", CodeTopicReply, true},
	{"333", "IIIrcd", CodeTopicStamp, true},
	{"263", "IIIs:", CodeTryAgain, true},
	{"305", "III", CodeUnaway, true},
	{"001", "IIc", CodeWelcome, true},
	{"319", "IIIc.", CodeWhoisChannels, true},
	{"378", "IIIc:", CodeWhoisHost, true},
	{"330", "IIIcs:", CodeWhoisLoggedIn, true},
	{"313", "IIIc:", CodeWhoisOperator, true},
	{"307", "IIIc:", CodeWhoisRegNick, true},
	{"671", "IIIc:", CodeWhoisSecure, true},
	{"312", "IIIcs:", CodeWhoisServer, true},
	{"311", "IIIcssI:", CodeWhoisUser, true},
	{"317", "IIIcd", CodeWhoisIdle, true},
	{"322", "IIIrd.", CodeListReply, true},
	{"323", "I", CodeListEnd, true},
	{"421", "IIIs:", CodeUnknownCommand, true},
	{"900", "IIIIs:", CodeLoggedIn, true},
	{"903", "III", CodeSASLSuccess, true},
	{"904", "III", CodeSASLFail, true},
	{"905", "III", CodeSASLTooLong, true},
	{"906", "III", CodeSASLAborted, true},
	{"907", "III", CodeSASLAlready, true},
}
