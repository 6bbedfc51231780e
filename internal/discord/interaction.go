package discord

// Interaction種別
const (
	InteractionPing               = 1
	InteractionApplicationCommand = 2
)

// 応答種別
const (
	ResponsePong                   = 1
	ResponseChannelMessage         = 4
	ResponseDeferredChannelMessage = 5
)

// FlagEphemeral はコマンド実行者にのみ表示するメッセージフラグ。
const FlagEphemeral = 64

// Interaction はDiscordから送られるInteractionのうち使用するフィールド。
type Interaction struct {
	Type          int          `json:"type"`
	ApplicationID string       `json:"application_id"`
	Token         string       `json:"token"`
	ChannelID     string       `json:"channel_id"`
	Data          *CommandData `json:"data,omitempty"`
	Member        *Member      `json:"member,omitempty"`
	User          *User        `json:"user,omitempty"`
}

// CommandData はスラッシュコマンドの内容。
type CommandData struct {
	Name string `json:"name"`
}

// Member はギルド内で実行された場合の実行者。
type Member struct {
	User *User `json:"user,omitempty"`
}

// User はDiscordユーザー。
type User struct {
	ID       string `json:"id"`
	Username string `json:"username"`
}

// UserID は実行者のIDを返す。ギルドではmember.user、DMではuserに入る。
func (i *Interaction) UserID() string {
	if i.Member != nil && i.Member.User != nil && i.Member.User.ID != "" {
		return i.Member.User.ID
	}
	if i.User != nil {
		return i.User.ID
	}
	return ""
}

// CommandName はコマンド名を返す。
func (i *Interaction) CommandName() string {
	if i.Data == nil {
		return ""
	}
	return i.Data.Name
}

// Response はInteractionへの応答。
type Response struct {
	Type int          `json:"type"`
	Data *MessageData `json:"data,omitempty"`
}

// MessageData は応答・フォローアップのメッセージ本体。
type MessageData struct {
	Content string `json:"content,omitempty"`
	Flags   int    `json:"flags,omitempty"`
}

func ephemeral(content string) *Response {
	return &Response{
		Type: ResponseChannelMessage,
		Data: &MessageData{Content: content, Flags: FlagEphemeral},
	}
}
