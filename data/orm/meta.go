package orm

// FieldMeta 描述字段元信息。
type FieldMeta struct {
	Name          string
	Column        string
	PrimaryKey    bool
	AutoIncrement bool
	Nullable      bool
}

// ModelMeta 描述模型级别元信息。
type ModelMeta struct {
	Model  any
	Table  string
	Fields []FieldMeta
}

// PrimaryKeys 返回主键列，未声明时默认 "id"。
func (m *ModelMeta) PrimaryKeys() []string {
	if m == nil {
		return nil
	}
	var keys []string
	for _, f := range m.Fields {
		if f.PrimaryKey && f.Column != "" {
			keys = append(keys, f.Column)
		}
	}
	if len(keys) == 0 {
		keys = []string{"id"}
	}
	return keys
}
