package persona

import (
	"context"
	"fmt"
	"strings"

	"github.com/BaSui01/paneltalk/types"
)

// Store 是发言人档案库的统一接口。实现必须并发安全。
type Store interface {
	// Get 按名称取档案。不存在时返回 NOT_FOUND。
	Get(ctx context.Context, name string) (*types.Speaker, error)
	// List 返回全部档案，按名称字典序。
	List(ctx context.Context) ([]*types.Speaker, error)
	// Put 新建或整体覆盖档案。
	Put(ctx context.Context, sp *types.Speaker) error
	// Delete 删除档案。不存在时返回 NOT_FOUND。
	Delete(ctx context.Context, name string) error
}

// Validate 校验档案的基本约束，Put 前必须通过。
func Validate(sp *types.Speaker) error {
	if sp == nil {
		return types.NewError(types.ErrInvalidRequest, "persona is nil")
	}
	name := strings.TrimSpace(sp.Name)
	if name == "" {
		return types.NewError(types.ErrInvalidRequest, "persona name is empty")
	}
	if name == types.UserSpeakerName {
		return types.NewError(types.ErrInvalidRequest,
			fmt.Sprintf("persona name %q is reserved", types.UserSpeakerName))
	}
	switch sp.Role {
	case types.RoleModerator, types.RoleParticipant:
	default:
		return types.NewError(types.ErrInvalidRequest,
			fmt.Sprintf("unknown persona role %q", sp.Role))
	}
	return nil
}

func notFound(name string) error {
	return types.NewError(types.ErrNotFound,
		fmt.Sprintf("persona %q not found", name)).WithHTTPStatus(404)
}
