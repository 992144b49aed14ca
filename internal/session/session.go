// Package session は署名付きCookieとキーバリューストアによるセッション管理を提供する。
package session

// セッション属性のキー。ワイヤフォーマット（保存されるJSONのキー）を兼ねる。
const (
	AttrUserID          = "userId"
	AttrActiveAccountID = "activeAccountId"
)

// Session はサーバー側セッション状態を表す。
// 属性の変更はSet / Deleteを通してのみ行い、変更があるとdirtyフラグが立つ。
// dirtyなセッションのみがレスポンス終了時に書き戻される。
type Session struct {
	id     string
	values map[string]any
	dirty  bool
}

// NewSession は指定IDの空セッションを生成する。
// 通常のリクエスト処理ではManager.Loadがセッションを生成する。
func NewSession(id string) *Session {
	return &Session{
		id:     id,
		values: make(map[string]any),
	}
}

// ID はセッションの不透明な識別子を返す。
func (s *Session) ID() string {
	return s.id
}

// Get は属性値を返す。存在しない場合は (nil, false) を返す。
func (s *Session) Get(key string) (any, bool) {
	v, ok := s.values[key]
	return v, ok
}

// GetString は文字列属性を返す。存在しないか文字列でない場合は空文字列を返す。
func (s *Session) GetString(key string) string {
	v, ok := s.values[key]
	if !ok {
		return ""
	}
	str, ok := v.(string)
	if !ok {
		return ""
	}
	return str
}

// Set は属性を書き込み、セッションをdirtyにする。
func (s *Session) Set(key string, value any) {
	s.values[key] = value
	s.dirty = true
}

// Delete は属性を削除し、セッションをdirtyにする。
func (s *Session) Delete(key string) {
	if _, ok := s.values[key]; !ok {
		return
	}
	delete(s.values, key)
	s.dirty = true
}

// Dirty は書き戻しが必要かどうかを返す。
func (s *Session) Dirty() bool {
	return s.dirty
}

// UserID はログイン済みユーザーIDを返す。未ログインの場合は空文字列。
func (s *Session) UserID() string {
	return s.GetString(AttrUserID)
}

// ActiveAccountID は選択中のアカウントIDを返す。未選択の場合は空文字列。
func (s *Session) ActiveAccountID() string {
	return s.GetString(AttrActiveAccountID)
}
