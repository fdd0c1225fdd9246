package graphmodel

import "fmt"

// The following constructors enforce the closed id-prefix scheme so
// extractors never hand-format an id string inline.

// FileID returns the id of a code_file node.
func FileID(path string) string {
	return "file://" + path
}

// EnvVarID returns the id of an env_var node.
func EnvVarID(name string) string {
	return "env:" + name
}

// InfraResourceID returns the id of a Terraform-style `resource "type" "name"`.
func InfraResourceID(resourceType, name string) string {
	return fmt.Sprintf("infra:%s.%s", resourceType, name)
}

// InfraDataID returns the id of a Terraform `data` source block.
func InfraDataID(dataType, name string) string {
	return fmt.Sprintf("infra:data.%s.%s", dataType, name)
}

// InfraLocalID returns the id of a Terraform `locals` entry.
func InfraLocalID(name string) string {
	return "infra:local." + name
}

// InfraOutputID returns the id of a Terraform `output` block.
func InfraOutputID(name string) string {
	return "infra:output:" + name
}

// InfraModuleID returns the id of a Terraform `module` block.
func InfraModuleID(name string) string {
	return "infra:module." + name
}

// DataAssetID returns the id of a namespace/name-qualified data asset
// (e.g. an OpenLineage dataset).
func DataAssetID(namespace, name string) string {
	return fmt.Sprintf("data:%s/%s", namespace, name)
}

// DataFormatID returns the id of a format-qualified data asset reference.
func DataFormatID(format, ref string) string {
	return fmt.Sprintf("data:%s:%s", format, ref)
}

// DataModelID returns the id of a dbt model.
func DataModelID(name string) string {
	return "data:model:" + name
}

// DataSourceID returns the id of a dbt source table.
func DataSourceID(source, table string) string {
	return fmt.Sprintf("data:source:%s.%s", source, table)
}

// JobID returns the id of a namespace/name-qualified job (e.g. OpenLineage run).
func JobID(namespace, name string) string {
	return fmt.Sprintf("job:%s/%s", namespace, name)
}

// EntityID returns the id of a code_entity (function/class/method/type).
func EntityID(filePath, symbol string) string {
	return fmt.Sprintf("entity:%s:%s", filePath, symbol)
}

// ConfigKeyID returns the id of a config_key (e.g. a Spark config property).
func ConfigKeyID(system, key string) string {
	return fmt.Sprintf("config:%s:%s", system, key)
}
