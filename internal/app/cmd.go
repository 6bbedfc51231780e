package app

// Command はアプリケーションの起動モードを表す。
type Command string

const (
	// CommandServe はAPIサーバーモードで起動することを示す。
	CommandServe Command = "serve"
	// CommandWorker は期限切れOAuthStateのクリーンアップワーカーとして起動することを示す。
	CommandWorker Command = "worker"
	// CommandMigrate はデータベースマイグレーションを実行することを示す。
	CommandMigrate Command = "migrate"
	// CommandHealthcheck はヘルスチェックを実行することを示す。
	// distroless環境でのDockerヘルスチェック用。
	CommandHealthcheck Command = "healthcheck"
)

var commandDescriptions = map[Command]string{
	CommandServe:       "HTTP API server",
	CommandWorker:      "oauth state cleanup worker",
	CommandMigrate:     "apply database migrations",
	CommandHealthcheck: "probe the local /health endpoint",
}

// ParseCommand はコマンドライン引数からサブコマンドを解析する。
// 引数が空またはサポート外のコマンドの場合はCommandServeを返す。
func ParseCommand(args []string) Command {
	if len(args) == 0 {
		return CommandServe
	}
	cmd := Command(args[0])
	if _, ok := commandDescriptions[cmd]; !ok {
		return CommandServe
	}
	return cmd
}

// Description はサブコマンドの説明を返す。
func (c Command) Description() string {
	return commandDescriptions[c]
}
