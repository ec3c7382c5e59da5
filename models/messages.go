package models

const (
	// IdentifyInstruction is sent with every image.
	IdentifyInstruction = "この画像に写っている物体を日本語で識別して、名前と簡単な説明を教えてください。"

	ResultEmptyMessage  = "解析結果を取得できませんでした。"
	ResultFailedMessage = "解析に失敗しました。ネットワーク接続やAPIキーを確認してください。"

	AlertErrorTitle           = "エラー"
	AlertPermissionTitle      = "権限エラー"
	AlertGalleryFailedMessage = "ギャラリーからの画像選択に失敗しました。"
	AlertCameraFailedMessage  = "写真の撮影に失敗しました。"
	AlertCameraPermission     = "カメラへのアクセス権限が必要です。設定からアクセスを許可してください。"
)

type Alert struct {
	Title   string `json:"title"`
	Message string `json:"message"`
}
