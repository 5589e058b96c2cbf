package app

// Command はblogmanのサブコマンドを表す。
type Command string

const (
	// CommandServe はWebサーバーとして起動する。
	CommandServe Command = "serve"
	// CommandWorker は期限切れセッションの削除ワーカーとして起動する。
	CommandWorker Command = "worker"
	// CommandMigrate はマイグレーション（Mongo利用時はインデックス作成も）を実行する。
	CommandMigrate Command = "migrate"
	// CommandPromoteAdmin は指定ユーザーを管理者に昇格する。最初の管理者を作るための運用コマンド。
	CommandPromoteAdmin Command = "promote-admin"
	// CommandHealthcheck は稼働中サーバーの/healthを叩いて終了コードで結果を返す。
	CommandHealthcheck Command = "healthcheck"
)

var knownCommands = map[string]Command{
	string(CommandServe):        CommandServe,
	string(CommandWorker):       CommandWorker,
	string(CommandMigrate):      CommandMigrate,
	string(CommandPromoteAdmin): CommandPromoteAdmin,
	string(CommandHealthcheck):  CommandHealthcheck,
}

// ParseCommand は先頭の引数からサブコマンドを決める。
// 引数なし、または未知の値の場合はCommandServe。
func ParseCommand(args []string) Command {
	if len(args) == 0 {
		return CommandServe
	}
	if cmd, ok := knownCommands[args[0]]; ok {
		return cmd
	}
	return CommandServe
}
