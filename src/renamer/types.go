package renamer

// AutoRenameRequest 自动重命名请求结构
type AutoRenameRequest struct {
	Path string `json:"path"` // 笔记库内的图片路径
}

// SuggestRequest 候选名请求结构
type SuggestRequest struct {
	Path string `json:"path"`
}

// ApplyRequest 确认命名请求结构
type ApplyRequest struct {
	Path string `json:"path"`
	Name string `json:"name"` // 用户选择或自行输入的名字
}

// RenameResponse 重命名标准响应结构
type RenameResponse struct {
	Success     bool   `json:"success"`                // 是否成功
	OperationID string `json:"operation_id,omitempty"` // 操作ID
	OldPath     string `json:"old_path,omitempty"`     // 原路径（成功时）
	NewPath     string `json:"new_path,omitempty"`     // 新路径（成功时）
	FinalName   string `json:"final_name,omitempty"`   // 最终文件名（成功时）
	Message     string `json:"message,omitempty"`      // 错误信息（失败时）
	Kind        string `json:"kind,omitempty"`         // 错误类别（失败时）
}

// SuggestResponse 候选名响应结构
type SuggestResponse struct {
	Success     bool     `json:"success"`
	OperationID string   `json:"operation_id,omitempty"`
	Candidates  []string `json:"candidates"` // 可能为空，由前端引导用户自行输入
	Message     string   `json:"message,omitempty"`
	Kind        string   `json:"kind,omitempty"`
}

// AuthRequest 换取访问token的请求结构
type AuthRequest struct {
	ClientID string `json:"client_id"`
	Token    string `json:"token"` // 服务端配置的共享密钥
}

// AuthResponse 换取访问token的响应结构
type AuthResponse struct {
	Success     bool   `json:"success"`
	AccessToken string `json:"access_token,omitempty"`
	Message     string `json:"message,omitempty"`
}

// AuthVerifyResult 认证验证结果
type AuthVerifyResult struct {
	IsValid  bool
	ClientID string
}
