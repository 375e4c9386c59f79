package renamer

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"pixname-server-go/src/core/errs"
	"pixname-server-go/src/core/rename"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

const (
	// MaxManualRetries 单个会话内允许的重新请求候选次数上限
	MaxManualRetries = 3
)

var wsUpgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // 允许所有来源的连接
	},
}

// WSClientMessage 客户端消息结构
type WSClientMessage struct {
	Type string `json:"type"` // start / choose / retry / cancel
	Path string `json:"path,omitempty"`
	Name string `json:"name,omitempty"`
}

// WSServerEvent 服务端事件结构
type WSServerEvent struct {
	Type        string   `json:"type"` // state / candidates / done / error
	OperationID string   `json:"operation_id,omitempty"`
	State       string   `json:"state,omitempty"`
	Candidates  []string `json:"candidates,omitempty"`
	OldPath     string   `json:"old_path,omitempty"`
	NewPath     string   `json:"new_path,omitempty"`
	FinalName   string   `json:"final_name,omitempty"`
	Message     string   `json:"message,omitempty"`
	Kind        string   `json:"kind,omitempty"`
}

// wsSession 一次交互式重命名会话，按消息驱动，一次只处理一张图片
type wsSession struct {
	service *DefaultRenamerService
	conn    *websocket.Conn
	writeMu sync.Mutex
	path    string
	retries int
}

// handleWebSocket 交互式重命名入口
func (s *DefaultRenamerService) handleWebSocket(c *gin.Context) {
	if s.config.Server.Auth.Enabled {
		result, err := s.verifyAuth(c)
		if err != nil || !result.IsValid {
			s.logger.Warn(fmt.Sprintf("WebSocket认证失败: %v", err))
			c.AbortWithStatus(http.StatusUnauthorized)
			return
		}
	}

	conn, err := wsUpgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.logger.Error(fmt.Sprintf("WebSocket升级失败: %v", err))
		return
	}

	session := &wsSession{service: s, conn: conn}
	s.addSession(session)
	defer s.removeSession(session)
	session.run(c.Request.Context())
}

// run 会话主循环，连接断开或cancel消息后退出
func (session *wsSession) run(ctx context.Context) {
	s := session.service
	defer session.conn.Close()

	for {
		_, data, err := session.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Warn(fmt.Sprintf("WebSocket连接异常断开: %v", err))
			}
			return
		}

		var msg WSClientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			session.sendError(errs.KindConfig, "无法解析的消息")
			continue
		}

		switch msg.Type {
		case "start":
			session.handleStart(ctx, msg)
		case "retry":
			session.handleRetry(ctx)
		case "choose":
			session.handleChoose(ctx, msg)
		case "cancel":
			s.logger.Info("交互式重命名会话被用户取消")
			return
		default:
			session.sendError(errs.KindConfig, fmt.Sprintf("未知的消息类型: %s", msg.Type))
		}
	}
}

// handleStart 开始一次会话：请求候选并推送给客户端
func (session *wsSession) handleStart(ctx context.Context, msg WSClientMessage) {
	if msg.Path == "" {
		session.sendError(errs.KindConfig, "缺少path字段")
		return
	}
	session.path = msg.Path
	session.retries = 0
	session.suggest(ctx)
}

// handleRetry 用户不满意候选时重新请求一轮，次数有上限
func (session *wsSession) handleRetry(ctx context.Context) {
	if session.path == "" {
		session.sendError(errs.KindConfig, "会话尚未开始")
		return
	}
	if session.retries >= MaxManualRetries {
		session.sendError(errs.KindRateLimit,
			fmt.Sprintf("重新请求次数已达上限(%d)，请自行输入名字", MaxManualRetries))
		return
	}
	session.retries++
	session.suggest(ctx)
}

// suggest 执行候选流水线并推送candidates事件
func (session *wsSession) suggest(ctx context.Context) {
	s := session.service

	suggestions, err := s.orchestrator.SuggestNames(ctx, session.path)
	if err != nil {
		session.sendError(errs.KindOf(err), err.Error())
		return
	}

	session.send(WSServerEvent{
		Type:        "candidates",
		OperationID: suggestions.OperationID,
		Candidates:  suggestions.Candidates,
	})
}

// handleChoose 用户确定最终名字后执行重命名并推送done事件
func (session *wsSession) handleChoose(ctx context.Context, msg WSClientMessage) {
	s := session.service

	if session.path == "" {
		session.sendError(errs.KindConfig, "会话尚未开始")
		return
	}
	if msg.Name == "" {
		session.sendError(errs.KindConfig, "缺少name字段")
		return
	}

	result, err := s.orchestrator.ApplyName(ctx, session.path, msg.Name)
	if err != nil {
		session.sendError(errs.KindOf(err), err.Error())
		return
	}

	session.send(WSServerEvent{
		Type:        "done",
		OperationID: result.OperationID,
		OldPath:     result.OldPath,
		NewPath:     result.NewPath,
		FinalName:   result.FinalName,
	})

	// 一个会话只处理一张图片，完成后等待新的start
	session.path = ""
	session.retries = 0
}

func (session *wsSession) send(event WSServerEvent) {
	data, err := json.Marshal(event)
	if err != nil {
		session.service.logger.Error(fmt.Sprintf("序列化WebSocket事件失败: %v", err))
		return
	}
	// 状态广播与会话主循环可能并发写同一连接
	session.writeMu.Lock()
	defer session.writeMu.Unlock()
	if err := session.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		session.service.logger.Warn(fmt.Sprintf("发送WebSocket事件失败: %v", err))
	}
}

func (session *wsSession) sendError(kind errs.Kind, message string) {
	session.send(WSServerEvent{
		Type:    "error",
		Kind:    string(kind),
		Message: message,
	})
}

// BroadcastState 把状态机变迁推送给所有在线会话，客户端按operation_id过滤。
// 由构造时注册到Orchestrator.SetStateListener。
func (s *DefaultRenamerService) BroadcastState(operationID string, state rename.State) {
	event := WSServerEvent{
		Type:        "state",
		OperationID: operationID,
		State:       string(state),
	}
	s.sessionsMu.Lock()
	defer s.sessionsMu.Unlock()
	for session := range s.sessions {
		session.send(event)
	}
}

func (s *DefaultRenamerService) addSession(session *wsSession) {
	s.sessionsMu.Lock()
	defer s.sessionsMu.Unlock()
	s.sessions[session] = struct{}{}
}

func (s *DefaultRenamerService) removeSession(session *wsSession) {
	s.sessionsMu.Lock()
	defer s.sessionsMu.Unlock()
	delete(s.sessions, session)
}
