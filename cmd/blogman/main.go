// Command blogman はブログのWebサーバーと運用コマンドを起動する。
//
//	blogman [serve]             Webサーバーを起動する
//	blogman migrate             PostgreSQLのマイグレーションとMongoDBのインデックス作成を行う
//	blogman worker              期限切れセッションを定期削除する
//	blogman promote-admin <id>  ユーザーを管理者に昇格する
//	blogman healthcheck         /health を確認する
package main

import (
	"fmt"
	"os"

	"github.com/hitoshi/blogman/internal/app"
)

func main() {
	if err := app.Run(os.Stdout, os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
