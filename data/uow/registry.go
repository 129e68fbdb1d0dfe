package uow

import (
	"fmt"
	"reflect"
	"sync"

	"auditor/data/orm"
)

// Registry 维护 Go 结构体类型到模型元信息的映射。
//
// 未显式注册的实体在首次跟踪时按反射元信息自动注册，
// 表名取自实体的 TableName() 方法。
type Registry struct {
	mu    sync.RWMutex
	metas map[reflect.Type]*orm.ModelMeta
}

// NewRegistry 创建模型注册表
func NewRegistry() *Registry {
	return &Registry{metas: make(map[reflect.Type]*orm.ModelMeta)}
}

// Register 注册模型元信息；Fields 为空时按结构体标签推导。
func (r *Registry) Register(meta *orm.ModelMeta) (*orm.ModelMeta, error) {
	if meta == nil || meta.Model == nil {
		return nil, fmt.Errorf("uow: model meta requires a model")
	}

	sm, err := orm.StructMetaOf(meta.Model)
	if err != nil {
		return nil, err
	}

	registered := *meta
	if registered.Table == "" {
		tn, ok := orm.TableNameOf(meta.Model)
		if !ok || tn == "" {
			return nil, fmt.Errorf("uow: cannot resolve table name for %s", sm.Type)
		}
		registered.Table = tn
	}
	if len(registered.Fields) == 0 {
		for _, f := range sm.Fields {
			registered.Fields = append(registered.Fields, orm.FieldMeta{
				Name:          f.Name,
				Column:        f.Column,
				PrimaryKey:    f.PrimaryKey,
				AutoIncrement: f.AutoIncrement,
			})
		}
	}

	r.mu.Lock()
	r.metas[sm.Type] = &registered
	r.mu.Unlock()
	return &registered, nil
}

// Lookup 查找实体类型对应的模型元信息
func (r *Registry) Lookup(entity any) (*orm.ModelMeta, bool) {
	t := reflect.TypeOf(entity)
	if t == nil {
		return nil, false
	}
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	meta, ok := r.metas[t]
	return meta, ok
}

// Resolve 查找元信息，未注册时自动注册
func (r *Registry) Resolve(entity any) (*orm.ModelMeta, error) {
	if meta, ok := r.Lookup(entity); ok {
		return meta, nil
	}
	return r.Register(&orm.ModelMeta{Model: entity})
}
