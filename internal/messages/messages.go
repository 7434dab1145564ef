// Package messages holds user-facing chat text.
package messages

const (
	MsgWarnRateLimit  = "⚠️ %s 短時間に大量のメッセージが送信されたため、直近のメッセージを削除しました。"
	MsgWarnBannedTerm = "⚠️ %s 禁止ワードを含むメッセージを削除しました。"

	MsgReasonRateLimit  = "連続投稿"
	MsgReasonBannedTerm = "禁止ワード"

	MsgNoPermission = "🚫 このコマンドを実行する権限がありません。"
	MsgCommandError = "🚨 コマンドの実行中にエラーが発生しました。"

	MsgTimeBanUsage   = "使い方: `%stimeban @ユーザー <時間> [理由]` (例: `2` または `90m`)"
	MsgTimeBanDone    = "🔨 %s を %s BANしました。解除予定: <t:%d:f>"
	MsgTimeBanInvalid = "🚨 BAN期間が不正です: %v"
	MsgTimeBanFailed  = "🚨 BANに失敗しました: %v"
	MsgTimeBanReason  = "一時BAN (%s): %s"

	MsgUnbanUsage = "使い方: `%sunban @ユーザー`"
	MsgUnbanDone  = "✅ %s のBANを解除しました。"
	MsgUnbanFail  = "🚨 BAN解除に失敗しました: %v"

	MsgBansEmpty  = "現在、解除待ちの一時BANはありません。"
	MsgBansHeader = "**解除待ちの一時BAN**"
	MsgBansLine   = "• %s ・ 解除予定 <t:%d:R>"

	MsgBanWordUsage   = "使い方: `%sbanword add|remove|list [ワード]`"
	MsgBanWordAdded   = "✅ 禁止ワード「%s」を追加しました。"
	MsgBanWordExists  = "「%s」はすでに登録されています。"
	MsgBanWordRemoved = "🗑️ 禁止ワード「%s」を削除しました。"
	MsgBanWordMissing = "「%s」は登録されていません。"
	MsgBanWordEmpty   = "禁止ワードは登録されていません。"
	MsgBanWordHeader  = "**禁止ワード一覧** (%d件)"

	MsgAskUsage         = "使い方: `%sask <質問>`"
	MsgAskNoCredentials = "🚨 エラー: Gemini APIキーが設定されていません。チャット機能は無効です。"
	MsgAskExhausted     = "🚨 APIエラーが発生しました。しばらくしてからもう一度お試しください。"
	MsgAskThrottled     = "⏳ 質問が多すぎます。少し待ってからもう一度お試しください。"
	MsgAskFailed        = "🚨 通信エラーが発生しました。"

	MsgPresenceOnline  = "**%s** がオンラインになりました！ 👋"
	MsgPresenceOffline = "**%s** がオフラインになりました。またね！ 😴"

	MsgRoleGrantReason = "リアクター %s による %s リアクション"

	MsgAuditLine = "📝 [%s] %s | <#%s> ユーザー: %s / 証拠: %s / 削除: %d件"
)

// DefaultSystemInstruction is sent with every generation request unless overridden.
const DefaultSystemInstruction = "あなたはDiscordサーバーでフレンドリーに振る舞う、日本のチャットボットです。ユーザーの質問に親しみを込めて、日本語で答えてください。"
