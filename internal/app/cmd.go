package app

// Command はlettermanの起動モードを表す。
type Command string

const (
	// CommandServe はAPIサーバーとして起動する。既定のモード。
	CommandServe Command = "serve"
	// CommandWorker はフィードリフレッシュと記事クリーンアップのワーカーとして起動する。
	CommandWorker Command = "worker"
	// CommandMigrate はマイグレーションを適用して終了する。
	CommandMigrate Command = "migrate"
	// CommandHealthcheck は自分自身の/healthを叩いて終了する。
	// distrolessイメージにはcurlがないため、Dockerのhealthcheckから使う。
	CommandHealthcheck Command = "healthcheck"
)

var commands = map[string]Command{
	"serve":       CommandServe,
	"worker":      CommandWorker,
	"migrate":     CommandMigrate,
	"healthcheck": CommandHealthcheck,
}

// ParseCommand は第一引数からサブコマンドを解析する。
// 引数なし・未知のコマンドはCommandServeにフォールバックする。
// 2番目以降の引数は無視する。
func ParseCommand(args []string) Command {
	if len(args) == 0 {
		return CommandServe
	}
	if cmd, ok := commands[args[0]]; ok {
		return cmd
	}
	return CommandServe
}
