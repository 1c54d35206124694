// Package migrations 打包 transfers 表的 SQL 迁移文件，供部署脚本使用。
package migrations

import "embed"

// Files 暴露所有 SQL 迁移文件。
//
//go:embed *.sql
var Files embed.FS
